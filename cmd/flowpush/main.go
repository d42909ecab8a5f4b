package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowjournal/flowpush/internal/config"
	"github.com/flowjournal/flowpush/internal/logging"
	"github.com/flowjournal/flowpush/internal/server"
	"github.com/flowjournal/flowpush/internal/service"
	"github.com/flowjournal/flowpush/internal/storage"
	"github.com/flowjournal/flowpush/internal/storage/bolt"
	"github.com/flowjournal/flowpush/internal/storage/postgres"
	"github.com/flowjournal/flowpush/internal/webpush"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	genKeys := flag.Bool("genkeys", false, "Print a new VAPID key pair and exit")
	flag.Parse()

	if *genKeys {
		if err := printKeys(); err != nil {
			fmt.Fprintf(os.Stderr, "generate keys: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "flowpush: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, os.Stdout)
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	client, err := newPushClient(cfg)
	if err != nil {
		return err
	}

	authSvc := service.NewAuthService(cfg)
	subSvc := service.NewSubscriptionService(store)
	notifySvc := service.NewNotifyService(store, client, log)
	logSvc := service.NewDeliveryLogService(store)

	srv := server.New(cfg, log, client, subSvc, notifySvc, logSvc, authSvc)

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", cfg.HTTP.Addr, "storage", cfg.Storage.Driver)
		errCh <- srv.Start()
	}()

	// graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-sigCh:
	}

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutdown error", "err", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Driver == config.DriverPostgres {
		return postgres.New(ctx, cfg.Storage.DSN)
	}
	return bolt.New(cfg.Storage.Path)
}

func newPushClient(cfg *config.Config) (*webpush.Client, error) {
	keys, err := webpush.ParseVAPIDKeys(cfg.VAPID.PublicKey, cfg.VAPID.PrivateKey)
	if err != nil {
		return nil, err
	}
	signer, err := webpush.NewSigner(keys, cfg.VAPID.Subject, webpush.WithExpiration(cfg.VAPID.Expiration))
	if err != nil {
		return nil, err
	}
	tr, err := webpush.NewTransmitter(&http.Client{Timeout: cfg.Push.RequestTimeout},
		webpush.WithTTL(cfg.Push.TTL),
		webpush.WithUrgency(webpush.Urgency(cfg.Push.Urgency)),
		webpush.WithTopic(cfg.Push.Topic),
	)
	if err != nil {
		return nil, err
	}
	return webpush.NewClient(nil, signer, tr), nil
}

func printKeys() error {
	keys, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	priv, err := keys.PrivateKeyString()
	if err != nil {
		return err
	}
	fmt.Printf("FLOWPUSH_VAPID_PUBLIC_KEY=%s\nFLOWPUSH_VAPID_PRIVATE_KEY=%s\n", keys.PublicKeyString(), priv)
	return nil
}
