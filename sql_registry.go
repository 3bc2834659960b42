package ticketregistry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang/glog"
	"github.com/jmoiron/sqlx"
)

// sqlTicket is a row of the tickets table.
type sqlTicket struct {
	ID      string `db:"t_id"`
	Data    []byte `db:"t_data"` //codec output, sealed when a cipher is set
	Created int64  `db:"t_created"`
	Updated int64  `db:"t_updated"`
	Expires int64  `db:"t_expires"`
}

const sqlTicketColumns = `t_id, t_data, t_created, t_updated, t_expires`

// SQLRegistry implements the TicketRegistry interface
// to store tickets in a database
type SQLRegistry struct {
	DB     *sqlx.DB //Database connection
	codec  Codec
	cipher *Cipher
	now    func() time.Time
}

var _ TicketRegistry = (*SQLRegistry)(nil)

// NewSQLRegistry creates a SQLRegistry on db. A nil codec means JSONCodec.
func NewSQLRegistry(db *sqlx.DB, codec Codec, cipher *Cipher) *SQLRegistry {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &SQLRegistry{
		DB:     db,
		codec:  codec,
		cipher: cipher,
		now:    time.Now,
	}
}

// CreateSchema creates the tickets table if it does not exist.
func (s *SQLRegistry) CreateSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tickets (
			t_id      VARCHAR(255) NOT NULL PRIMARY KEY,
			t_data    BLOB         NOT NULL,
			t_created BIGINT       NOT NULL,
			t_updated BIGINT       NOT NULL,
			t_expires BIGINT       NOT NULL
		);`)
	return err
}

func (s *SQLRegistry) row(t Ticket) (*sqlTicket, error) {
	key := s.cipher.EncodeID(t.TicketID())

	data, err := s.codec.Marshal(t)
	if err != nil {
		return nil, err
	}
	if data, err = s.cipher.Seal(key, data); err != nil {
		return nil, err
	}

	now := s.now().Unix()
	return &sqlTicket{
		ID:      key,
		Data:    data,
		Created: now,
		Updated: now,
		Expires: now + ticketTimeout(t),
	}, nil
}

// AddTicket inserts the ticket unless a live ticket with its ID exists.
func (s *SQLRegistry) AddTicket(ctx context.Context, t Ticket) Outcome {
	id := t.TicketID()

	ts, err := s.row(t)
	if err != nil {
		glog.Errorf("ticketregistry: failed adding %v: %v", id, err)
		return OutcomeFailure
	}

	// An expired row would otherwise block the insert.
	if _, err := s.DB.ExecContext(ctx, s.DB.Rebind(`DELETE FROM tickets WHERE t_id = ? AND t_expires <= ?;`), ts.ID, ts.Created); err != nil {
		return s.failed("adding", id, err)
	}

	query := `INSERT INTO tickets (` + sqlTicketColumns + `)
			VALUES (:t_id, :t_data, :t_created, :t_updated, :t_expires);`

	if _, err := s.DB.NamedExecContext(ctx, query, ts); err != nil {
		return s.failed("adding", id, err)
	}
	return OutcomeSuccess
}

// UpdateTicket replaces a live ticket.
//
// As with memcached, a database error leaves the update undetermined and t
// is returned with OutcomeUnknown. A nil ticket means no live row matched.
func (s *SQLRegistry) UpdateTicket(ctx context.Context, t Ticket) (Ticket, Outcome) {
	id := t.TicketID()

	ts, err := s.row(t)
	if err != nil {
		glog.Errorf("ticketregistry: failed encoding %v: %v", id, err)
		return nil, OutcomeFailure
	}

	query := `UPDATE tickets SET t_data = :t_data, t_updated = :t_updated, t_expires = :t_expires
			WHERE t_id = :t_id AND t_expires > :t_updated;`

	res, err := s.DB.NamedExecContext(ctx, query, ts)
	if err != nil {
		s.failed("updating", id, err)
		return t, OutcomeUnknown
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		glog.Errorf("ticketregistry: failed to update %v", id)
		return nil, OutcomeFailure
	}
	return t, OutcomeSuccess
}

// GetTicket returns the live ticket stored under id.
func (s *SQLRegistry) GetTicket(ctx context.Context, id string) (Ticket, bool) {
	key := s.cipher.EncodeID(id)

	var ts sqlTicket
	err := s.DB.GetContext(ctx, &ts,
		s.DB.Rebind(`SELECT `+sqlTicketColumns+` FROM tickets WHERE t_id = ? AND t_expires > ?;`),
		key, s.now().Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		glog.Errorf("ticketregistry: failed fetching %v: %v", key, err)
		return nil, false
	}

	t, err := s.decode(&ts)
	if err != nil {
		glog.Errorf("ticketregistry: failed decoding %v: %v", key, err)
		return nil, false
	}
	return t, true
}

// DeleteSingleTicket removes the ticket for id
func (s *SQLRegistry) DeleteSingleTicket(ctx context.Context, id string) bool {
	res, err := s.DB.ExecContext(ctx, s.DB.Rebind(`DELETE FROM tickets WHERE t_id = ?;`), s.cipher.EncodeID(id))
	if err != nil {
		glog.Errorf("ticketregistry: failed deleting %v: %v", id, err)
		return true
	}

	if n, _ := res.RowsAffected(); n == 0 {
		glog.Infof("ticketregistry: ticket %v not found or is already removed", id)
	} else if glog.V(2) {
		glog.Infof("ticketregistry: removed ticket %v", id)
	}
	return true
}

// DeleteAll removes all ticket data and returns how many tickets were live.
func (s *SQLRegistry) DeleteAll(ctx context.Context) int64 {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		glog.Errorf("ticketregistry: failed deleting all tickets: %v", err)
		return 0
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM tickets WHERE t_expires > ?;`), s.now().Unix())
	if err != nil {
		glog.Errorf("ticketregistry: failed deleting all tickets: %v", err)
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		glog.Errorf("ticketregistry: failed counting deleted tickets: %v", err)
		return 0
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tickets;`); err != nil {
		glog.Errorf("ticketregistry: failed deleting expired tickets: %v", err)
		return 0
	}
	if err := tx.Commit(); err != nil {
		glog.Errorf("ticketregistry: failed deleting all tickets: %v", err)
		return 0
	}
	return n
}

// GetTickets returns every live ticket. Rows that cannot be decoded are
// logged and skipped.
func (s *SQLRegistry) GetTickets(ctx context.Context) []Ticket {
	rows, err := s.DB.QueryxContext(ctx,
		s.DB.Rebind(`SELECT `+sqlTicketColumns+` FROM tickets WHERE t_expires > ?;`), s.now().Unix())
	if err != nil {
		glog.Errorf("ticketregistry: failed listing tickets: %v", err)
		return []Ticket{}
	}
	defer rows.Close()

	tickets := []Ticket{}
	for rows.Next() {
		var ts sqlTicket
		if err := rows.StructScan(&ts); err != nil {
			glog.Errorf("ticketregistry: %v", err)
			continue
		}

		t, err := s.decode(&ts)
		if err != nil {
			glog.Errorf("ticketregistry: failed decoding %v: %v", ts.ID, err)
			continue
		}
		tickets = append(tickets, t)
	}

	if err := rows.Err(); err != nil {
		glog.Errorf("ticketregistry: failed listing tickets: %v", err)
	}
	return tickets
}

// DeleteExpired removes tickets whose expiry has passed.
func (s *SQLRegistry) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, s.DB.Rebind(`DELETE FROM tickets WHERE t_expires <= ?;`), s.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Shutdown closes the database connection.
func (s *SQLRegistry) Shutdown() error {
	return s.DB.Close()
}

func (s *SQLRegistry) decode(ts *sqlTicket) (Ticket, error) {
	data, err := s.cipher.Open(ts.ID, ts.Data)
	if err != nil {
		return nil, err
	}
	return s.codec.Unmarshal(data)
}

func (s *SQLRegistry) failed(op, id string, err error) Outcome {
	if interrupted(err) {
		glog.Warningf("ticketregistry: interrupted while %s ticket %v. Cannot determine whether it was successful.", op, id)
		return OutcomeUnknown
	}
	glog.Errorf("ticketregistry: failed %s %v: %v", op, id, err)
	return OutcomeFailure
}

// Ping checks the database connection.
func (s *SQLRegistry) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
