package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"support-triage-go/internal/config"
	"support-triage-go/internal/db"
	"support-triage-go/internal/fetcher"
	"support-triage-go/internal/handlers"
	"support-triage-go/internal/kb"
	"support-triage-go/internal/metrics"
	"support-triage-go/internal/nlp"
	"support-triage-go/internal/oracle"
	"support-triage-go/internal/pipeline"
	"support-triage-go/internal/responder"
	"support-triage-go/internal/scheduler"
	"support-triage-go/internal/server"
	"support-triage-go/internal/store"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Support Triage Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()
	st := store.NewGormStore(dbConn)

	completer := instrumentedCompleter(oracle.NewClient(&cfg.Oracle), m)
	if completer == nil {
		logrus.Info("No oracle API key configured, running heuristics only")
	}

	index := kb.NewIndex(cfg.Knowledge.Dir)
	analyzer := nlp.NewAnalyzer(completer)
	drafter := responder.NewDrafter(index, completer)
	pipe := pipeline.NewPipeline(analyzer, drafter, st, m, cfg.Pipeline.Workers)

	var f fetcher.EmailFetcher
	if cfg.Mail.UseIMAP {
		f, err = fetcher.NewIMAPFetcher(&cfg.Mail)
		if err != nil {
			return fmt.Errorf("failed to create IMAP fetcher: %w", err)
		}
		logrus.Info("Using IMAP for email fetching")
	} else {
		f, err = fetcher.NewGmailAPIFetcher(&cfg.Mail)
		if err != nil {
			return fmt.Errorf("failed to create Gmail API fetcher: %w", err)
		}
		logrus.Info("Using Gmail API for email fetching")
	}

	sched := scheduler.NewScheduler(&cfg.Scheduler, f, pipe, m, cfg.Mail.MaxCount)

	h := handlers.NewHandlers(st, sched, m)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := f.Close(); err != nil {
		logrus.Errorf("Failed to close fetcher: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

// instrumentedCompleter wraps the oracle client with call and failure
// counters. Returns nil when no client is configured so the analyzer and
// drafter skip the oracle path entirely.
func instrumentedCompleter(client *oracle.Client, m *metrics.Metrics) oracle.Completer {
	if client == nil {
		return nil
	}
	return oracle.CompleterFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		m.OracleCalls.Inc()
		out, err := client.Complete(ctx, prompt, maxTokens)
		if err != nil {
			m.OracleFailures.Inc()
		}
		return out, err
	})
}
