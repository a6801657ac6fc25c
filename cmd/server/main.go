// Command server runs the API, the notification socket and the cleanup
// worker in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jun/dijitalmektup/internal/app"
	"github.com/jun/dijitalmektup/internal/cleanup"
	"github.com/jun/dijitalmektup/internal/config"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/notify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, HumanReadable: cfg.HumanLogs, Writer: os.Stdout})
	if err != nil {
		return fmt.Errorf("unable to create logger: %w", err)
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.NewServices(shutdownCtx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer services.Close()

	application := app.New(services)
	hub := notify.NewHub(services.PubSub, log)
	ws := notify.NewHandler(hub, services.Authenticator, cfg.FrontendURL, log)
	worker := cleanup.NewWorker(services.Queue, services.Provider, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(shutdownCtx)
	}()
	go func() {
		defer wg.Done()
		worker.Run(shutdownCtx)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(w, r, shutdownCtx)
	})
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(w, r, shutdownCtx)
	})
	mux.Handle("/", application)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.With("addr", cfg.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error(err, "server failed")
			stop()
			wg.Wait()
			return err
		}
	case <-shutdownCtx.Done():
	}

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "graceful shutdown failed")
	}
	wg.Wait()
	return nil
}
