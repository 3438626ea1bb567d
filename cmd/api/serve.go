package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"faixabet-api/config"
	"faixabet-api/internal/ledger"
	"faixabet-api/internal/notify"
	"faixabet-api/internal/payment"
	"faixabet-api/internal/plans"
	"faixabet-api/internal/registration"
	"faixabet-api/internal/server"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")

	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	l := newLogger(cfg)
	defer l.Sync()

	l.Infow("Starting Faixabet API...")
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Stripe.PriceSilver == "" || cfg.Stripe.PriceGold == "" {
		l.Warnw("Some plan prices are not configured; checkout for those plans will fail")
	}

	database, err := connectDB(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer database.Close()

	if migrate {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
	}

	catalog := plans.NewCatalog(cfg.Stripe.PriceSilver, cfg.Stripe.PriceGold)

	var notifier ledger.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" && cfg.Telegram.AdminChatID != 0 {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.AdminChatID, catalog, l)
		if err != nil {
			l.Errorw("Telegram notifications disabled", "error", err)
		} else {
			notifier = tg
		}
	}

	stripeClient := payment.NewStripeClient(payment.Config{
		SecretKey:      cfg.Stripe.SecretKey,
		PublishableKey: cfg.Stripe.PublishableKey,
		WebhookSecret:  cfg.Stripe.WebhookSecret,
		SuccessURL:     cfg.Stripe.SuccessURL,
		CancelURL:      cfg.Stripe.CancelURL,
		Timeout:        cfg.Stripe.Timeout,
	})

	writer := ledger.NewWriter(database, notifier, l)
	resolver := payment.NewResolver(stripeClient, catalog)
	webhooks := payment.NewWebhooks(stripeClient, resolver, stripeClient, writer, database, l)
	registrar := registration.NewService(database, catalog, stripeClient, writer, l)

	httpServer := server.NewServer(server.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, &server.Handlers{
		PublishableKey: stripeClient.PublishableKey(),
		Registrar:      registrar,
		Confirmer:      resolver,
		Ledger:         writer,
		Webhooks:       webhooks,
		DB:             database,
		Logger:         l,
	}, l)

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return err
	}

	l.Infow("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		l.Errorw("Error during HTTP server shutdown", "error", err)
	}

	l.Infow("Stopped")
	return nil
}
