package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bjbigler/ticketregistry"
	"github.com/golang/glog"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthService = "ticketregistry"
	probeInterval = 5 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	configPath := pflag.String("config", "", "path to the YAML configuration file")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()
	// glog checks the standard flag set was parsed
	flag.CommandLine.Parse([]string{})
	defer glog.Flush()

	cfg, err := ticketregistry.LoadConfig(*configPath)
	if err != nil {
		glog.Exitf("ticketregistryd: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := cfg.NewRegistry(ctx)
	if err != nil {
		glog.Exitf("ticketregistryd: %v", err)
	}
	glog.Infof("ticketregistryd: using %s registry", cfg.Registry)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		glog.Exitf("ticketregistryd: listen on %s: %v", cfg.GRPCAddr, err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)

	go probe(ctx, registry, hs)
	go janitor(ctx, registry, cfg.EvictInterval)

	go func() {
		glog.Infof("ticketregistryd: serving health on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil {
			glog.Errorf("ticketregistryd: serve: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	glog.Infof("ticketregistryd: shutting down")

	hs.Shutdown()
	srv.GracefulStop()
	if err := registry.Shutdown(); err != nil {
		glog.Errorf("ticketregistryd: registry shutdown: %v", err)
	}
}

// probe keeps the health status in line with the registry's backend.
func probe(ctx context.Context, registry ticketregistry.TicketRegistry, hs *health.Server) {
	p, ok := registry.(pinger)
	if !ok {
		hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
		return
	}

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, probeInterval)
		err := p.Ping(pingCtx)
		cancel()

		if err != nil {
			glog.Warningf("ticketregistryd: backend unavailable: %v", err)
			hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
		} else {
			hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// janitor drops expired tickets from registries that keep them around.
func janitor(ctx context.Context, registry ticketregistry.TicketRegistry, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		switch r := registry.(type) {
		case *ticketregistry.MemoryRegistry:
			r.Evict()
		case *ticketregistry.SQLRegistry:
			n, err := r.DeleteExpired(ctx)
			if err != nil {
				glog.Errorf("ticketregistryd: deleting expired tickets: %v", err)
				continue
			}
			if glog.V(2) {
				glog.Infof("ticketregistryd: deleted %d expired tickets", n)
			}
		default:
			return
		}
	}
}
