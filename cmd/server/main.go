package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/firefroast/billboard/internal/config"
	"github.com/firefroast/billboard/internal/lifecycle"
	"github.com/firefroast/billboard/internal/printing"
	"github.com/firefroast/billboard/internal/reconcile"
	"github.com/firefroast/billboard/internal/server"
	"github.com/firefroast/billboard/internal/store"
	"github.com/firefroast/billboard/internal/store/memory"
	"github.com/firefroast/billboard/internal/store/sqlite"
	"github.com/firefroast/billboard/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Record store
	var (
		recordStore store.RecordStore
		ingestor    store.Ingestor
	)
	switch cfg.Store.Backend {
	case "sqlite":
		st, err := sqlite.New(cfg.Store.DBPath, sqlite.WithPollInterval(cfg.Store.PollInterval))
		if err != nil {
			slog.Error("Failed to initialize bill store", "error", err)
			os.Exit(1)
		}
		defer st.Close()
		recordStore, ingestor = st, st
		slog.Info("Bill store initialized", "backend", "sqlite", "database", cfg.Store.DBPath)
	case "memory":
		st := memory.New()
		recordStore, ingestor = st, st
		slog.Info("Bill store initialized", "backend", "memory")
	}

	// Receipt rendering and printer backend
	style := printing.ReceiptStyle{
		RestaurantName: cfg.Receipt.RestaurantName,
		CurrencySymbol: cfg.Receipt.CurrencySymbol,
	}
	var renderer printing.Renderer
	if cfg.Print.PDF {
		pdf := printing.NewPDFRenderer(style)
		defer pdf.Close()
		renderer = pdf
	} else {
		text, err := printing.NewTextRenderer(style)
		if err != nil {
			slog.Error("Failed to build receipt renderer", "error", err)
			os.Exit(1)
		}
		renderer = text
	}

	var printer printing.Printer
	switch cfg.Print.Backend {
	case "command":
		printer = printing.NewCommandPrinter(cfg.Print.Command)
		slog.Info("Printer initialized", "backend", "command", "command", cfg.Print.Command)
	case "file":
		fp, err := printing.NewFilePrinter(cfg.Print.SpoolDir)
		if err != nil {
			slog.Error("Failed to initialize spool directory", "error", err)
			os.Exit(1)
		}
		printer = fp
		slog.Info("Printer initialized", "backend", "file", "spool_dir", cfg.Print.SpoolDir)
	}

	prints := printing.NewManager(renderer, printer,
		printing.WithSettleDelay(cfg.Print.SettleDelay),
		printing.WithCompletionTimeout(cfg.Print.CompletionTimeout),
	)

	// Pipeline
	bills := reconcile.New(recordStore)
	life := lifecycle.New(recordStore, prints)

	reconcileDone := make(chan error, 1)
	go func() {
		reconcileDone <- bills.Run(ctx)
	}()

	// HTTP server, h2c so the SSE stream works over HTTP/2 without TLS
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(server.New(bills, life, ingestor).Handler(), &http2.Server{}),
	}

	serveDone := make(chan error, 1)
	go func() {
		slog.Info("Bill board starting", "address", cfg.Server.Addr)
		serveDone <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err := <-reconcileDone:
		// A subscription fault is surfaced, not silently retried.
		slog.Error("Bill reconciliation stopped", "error", err)
	case err := <-serveDone:
		slog.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Warn("Shutdown incomplete", "error", err)
	}
}
