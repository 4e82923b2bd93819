package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-ingenico/internal/config"
	"go-ingenico/internal/database"
	"go-ingenico/internal/events"
	"go-ingenico/internal/handlers"
	"go-ingenico/internal/mailer"
	"go-ingenico/internal/middleware"
	"go-ingenico/internal/notification"
	"go-ingenico/internal/notification/fcm"
	"go-ingenico/internal/notification/telegram"
	"go-ingenico/internal/notification/whatsapp"
	"go-ingenico/internal/payment"
	"go-ingenico/internal/payment/ingenico"
	"go-ingenico/internal/scheduler"
	"go-ingenico/internal/websocket"

	"github.com/rs/cors"
)

func main() {
	// Print banner
	printBanner()

	// Load configuration
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.InitDB(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureDefaultAdmin(cfg.AdminUser, cfg.AdminPass); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}

	// Load settings from database
	if settings, err := db.GetSettings(); err == nil {
		cfg.ApplySettings(settings)
	} else {
		logger.Warn("could not load stored settings", "error", err)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	defer wsHub.Stop()

	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Warn("kafka producer unavailable", "brokers", cfg.KafkaBrokers, "error", err)
		} else {
			defer producer.Close()
		}
	}

	// Event fan-out; in-flight deliveries finish before the sinks close
	dispatcher := notification.NewDispatcher(logger)
	defer dispatcher.Wait()
	dispatcher.Add("websocket", wsHub)
	dispatcher.Add("kafka", producer)

	dispatcher.Add("telegram", telegram.New(cfg.TelegramToken, cfg.TelegramChatID))
	dispatcher.Add("whatsapp", whatsapp.New(cfg, logger))
	dispatcher.Add("fcm", fcm.New(ctx, cfg, logger))
	dispatcher.Add("email", mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	}, logger))
	logger.Info("event sinks registered", "sinks", dispatcher.Sinks())

	// Initialize Payment Gateway (Ingenico)
	client := ingenico.New(cfg.Ingenico(), logger, ingenico.WithAuditRecorder(db))
	svc := payment.New(cfg.Payment(), client, db, logger, payment.WithEventSink(dispatcher))
	if !svc.IsAvailable() {
		logger.Warn("ingenico checkout unavailable", "reason", svc.DisabledReason())
	}

	// Initialize Scheduler
	sched := scheduler.New(db, svc, scheduler.Options{
		SweepInterval:  cfg.SweepInterval,
		StaleAfter:     cfg.StaleAfter,
		AuditRetention: cfg.AuditRetention,
	}, logger)
	if sched.Enabled() {
		sched.Start(ctx)
		defer sched.Stop()
	}

	// Setup router
	h := handlers.NewHandler(db, wsHub, svc, cfg, logger)
	limiter := middleware.NewRateLimiter(cfg.WebhookRate, cfg.WebhookBurst)
	router := handlers.NewRouter(h, limiter.Middleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	var handler http.Handler = router
	if cfg.AuthEnabled {
		handler = middleware.AuthMiddleware(cfg.JWTSecret)(handler)
	} else {
		logger.Warn("admin authentication disabled")
	}
	handler = middleware.RequestLogger(logger)(c.Handler(handler))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "port", cfg.ServerPort, "public_url", cfg.PublicURL, "test_mode", cfg.IngenicoTestMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printBanner() {
	banner := `
   ██████╗  ██████╗       ██╗███╗   ██╗ ██████╗ 
  ██╔════╝ ██╔═══██╗      ██║████╗  ██║██╔════╝ 
  ██║  ███╗██║   ██║█████╗██║██╔██╗ ██║██║  ███╗
  ██║   ██║██║   ██║╚════╝██║██║╚██╗██║██║   ██║
  ╚██████╔╝╚██████╔╝      ██║██║ ╚████║╚██████╔╝
   ╚═════╝  ╚═════╝       ╚═╝╚═╝  ╚═══╝ ╚═════╝ 

  Ingenico hosted checkout gateway
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`
	fmt.Println(banner)
}
