package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/immxrtalbeast/telemed/internal/config"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/lib/logger"
	"github.com/immxrtalbeast/telemed/lib/logger/sl"
	"github.com/joho/godotenv"
)

func main() {
	var opts options
	flag.StringVar(&opts.role, "role", string(domain.RolePatient), "doctor or patient")
	flag.StringVar(&opts.name, "name", "", "display name, defaults to the role")
	flag.StringVar(&opts.server, "server", "", "api base url, overrides client.server_url")
	flag.StringVar(&opts.consultationType, "type", "", "consultation type for patients")
	flag.StringVar(&opts.specialty, "specialty", "", "doctor specialty")
	flag.DurationVar(&opts.duration, "duration", 0, "end the call after this long, 0 waits for a signal")

	_ = godotenv.Load(".env")

	// flags above are parsed by MustLoad together with -config
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	if opts.server == "" {
		opts.server = cfg.Client.ServerURL
	}
	if opts.name == "" {
		opts.name = opts.role
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newAgent(ctx, cfg, opts, log)
	if err != nil {
		log.Error("failed to start agent", sl.Err(err))
		os.Exit(1)
	}
	defer a.close()

	if err := a.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("agent stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("agent done", slog.String("role", opts.role))
}

type options struct {
	role             string
	name             string
	server           string
	consultationType string
	specialty        string
	duration         time.Duration
}
