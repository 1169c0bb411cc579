package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guestledger/dupguard/internal/api"
	"github.com/guestledger/dupguard/internal/audit"
	"github.com/guestledger/dupguard/internal/cache"
	"github.com/guestledger/dupguard/internal/config"
	"github.com/guestledger/dupguard/internal/detect"
	"github.com/guestledger/dupguard/internal/logger"
	"github.com/guestledger/dupguard/internal/monitor"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audit and performance HTTP API",
	Long: `Start the HTTP server exposing the audit log, compliance reports,
and performance monitoring endpoints.

The decision workflow stays interactive (see 'dupguard check'); the
server is read-mostly and safe to point dashboards at. Shuts down
cleanly on SIGINT/SIGTERM, draining any queued audit writes first.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if err := runServer(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default :8088)")
	rootCmd.AddCommand(serveCmd)
}

// runServer wires the full pipeline and blocks until shutdown
func runServer(cfg config.Config) error {
	log := logger.NewService(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	qc := cache.New(&cache.Config{TTL: cfg.Cache.TTL, SweepInterval: cfg.Cache.SweepInterval}, log)
	qc.Start()
	defer qc.Stop()

	det := detect.New(store, qc, cfg.Detector, log)
	aud := audit.New(store, cfg.Audit, log)
	mon := monitor.New(cfg.Monitor, cfg.Cache.TargetHitRate, log)
	det.SetObserver(mon)
	aud.SetObserver(mon)

	if cfg.Audit.MirrorEnabled {
		mirror, merr := audit.NewBigQueryMirror(ctx, cfg.Audit, log)
		if merr != nil {
			return fmt.Errorf("connecting audit mirror: %w", merr)
		}
		defer mirror.Close()
		aud.SetMirror(mirror)
	}

	aud.Start()
	defer aud.Stop()

	h := api.NewHandlers(api.Deps{
		Audit:    aud,
		Monitor:  mon,
		Cache:    qc,
		Detector: det,
		Store:    store,
		Config:   cfg,
	}, log)
	srv := api.New(h, cfg.Server.Addr, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Str("db", cfg.Server.DBPath).Msg("server listening")
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Server.RetentionInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Server.RetentionInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					// Store.Cleanup logs the deleted count itself.
					if _, cerr := aud.Cleanup(ctx, 0); cerr != nil {
						log.Warn().Err(cerr).Msg("retention cleanup failed")
					}
				}
			}
		})
	}

	err = g.Wait()
	log.Info().Msg("server stopped")
	return err
}
