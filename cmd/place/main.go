// Command place runs the collaborative pixel canvas server: it loads
// configuration, the credential store, and the audit log, then wires the
// tick engine and transport together and serves until interrupted.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cpsdqs/place/internal/audit"
	"github.com/cpsdqs/place/internal/auth"
	"github.com/cpsdqs/place/internal/config"
	"github.com/cpsdqs/place/internal/engine"
	"github.com/cpsdqs/place/internal/registry"
	"github.com/cpsdqs/place/internal/transport"
)

func main() {
	root := &cobra.Command{
		Use:   "place",
		Short: "real-time collaborative pixel canvas server",
		RunE:  run,
	}

	root.Flags().String("config", "place.yaml", "path to a YAML config file (optional)")
	root.Flags().String("addr", "", "listen address, overrides config")
	root.Flags().String("static-dir", "", "static file directory, overrides config")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	addrFlag, _ := cmd.Flags().GetString("addr")
	staticDirFlag, _ := cmd.Flags().GetString("static-dir")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addrFlag != "" {
		cfg.Address = addrFlag
	}
	if staticDirFlag != "" {
		cfg.StaticDir = staticDirFlag
	}

	authStore, err := auth.Load(cfg.LoginsPath)
	if err != nil {
		return fmt.Errorf("load logins: %w", err)
	}
	stopWatch, err := authStore.WatchForChanges()
	if err != nil {
		log.Printf("place: credential hot-reload disabled: %v", err)
	} else {
		defer stopWatch()
	}

	auditLog, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	reg := registry.New()
	eng, err := engine.New(engine.Options{
		CanvasPath:       cfg.CanvasPath,
		TickRate:         cfg.TickRate,
		SaveInterval:     cfg.SaveInterval,
		MaxPixelsPerTick: cfg.MaxPixelsPerTick,
		QueueIdleTimeout: cfg.QueueIdleTimeout,
		BlankWidth:       cfg.BlankWidth,
		BlankHeight:      cfg.BlankHeight,
	}, reg)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	srv, err := transport.New(cfg.StaticDir, eng, authStore, auditLog)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engineDone := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(engineDone)
	}()

	httpSrv := &http.Server{
		Addr:    cfg.Address,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("place: listening on %s, serving %s", cfg.Address, cfg.StaticDir)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Println("place: shutting down...")
		closeErr := httpSrv.Close()
		<-engineDone
		return closeErr
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
