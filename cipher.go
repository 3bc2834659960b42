package ticketregistry

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinCipherKeySize is the shortest master key NewCipher accepts.
	MinCipherKeySize = 32

	sealedVersion  byte = 0x01
	sealedOverhead      = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
)

var (
	hkdfInfoTicketID   = []byte("ticketregistry.id.v1")
	hkdfInfoTicketBody = []byte("ticketregistry.body.v1")
)

// Cipher encodes ticket IDs and seals ticket bodies before they reach a
// shared store. A nil *Cipher passes everything through unchanged.
type Cipher struct {
	idKey []byte
	aead  cipher.AEAD
}

// NewCipher derives the ID and body keys from masterKey.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) < MinCipherKeySize {
		return nil, fmt.Errorf("ticketregistry: cipher key is %d bytes, minimum is %d", len(masterKey), MinCipherKeySize)
	}

	idKey, err := deriveKey(masterKey, hkdfInfoTicketID)
	if err != nil {
		return nil, err
	}
	bodyKey, err := deriveKey(masterKey, hkdfInfoTicketBody)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(bodyKey)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	return &Cipher{idKey: idKey, aead: aead}, nil
}

func deriveKey(masterKey, info []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterKey, nil, info)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return key, nil
}

// EncodeID returns the store key for a ticket ID: a hex BLAKE3 keyed
// hash, so stored keys do not reveal live ticket IDs.
func (c *Cipher) EncodeID(id string) string {
	if c == nil {
		return id
	}

	hasher, err := blake3.NewKeyed(c.idKey)
	if err != nil {
		panic("ticketregistry: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(id))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Seal encrypts a ticket body bound to its encoded ID:
//
//	[Version: 1 byte] [Nonce: 24 bytes] [Ciphertext+Tag]
func (c *Cipher) Seal(encodedID string, plaintext []byte) ([]byte, error) {
	if c == nil {
		return plaintext, nil
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), sealedOverhead+len(plaintext))
	out[0] = sealedVersion
	copy(out[1:], nonce[:])

	return c.aead.Seal(out, nonce[:], plaintext, sealedAAD(encodedID)), nil
}

// Open reverses Seal. It fails if the body was sealed under another key
// or for another ticket.
func (c *Cipher) Open(encodedID string, sealed []byte) ([]byte, error) {
	if c == nil {
		return sealed, nil
	}

	if len(sealed) < sealedOverhead {
		return nil, fmt.Errorf("sealed ticket is %d bytes, minimum is %d", len(sealed), sealedOverhead)
	}
	if sealed[0] != sealedVersion {
		return nil, fmt.Errorf("sealed ticket version %d is not supported", sealed[0])
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := c.aead.Open(nil, nonce, sealed[1+chacha20poly1305.NonceSizeX:], sealedAAD(encodedID))
	if err != nil {
		return nil, fmt.Errorf("opening sealed ticket: %w", err)
	}
	return plaintext, nil
}

func sealedAAD(encodedID string) []byte {
	aad := make([]byte, 1+len(encodedID))
	aad[0] = sealedVersion
	copy(aad[1:], encodedID)
	return aad
}
