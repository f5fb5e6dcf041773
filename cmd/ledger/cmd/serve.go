package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/ledger/scheduler"
	"github.com/rustyeddy/ledger/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger HTTP API",
	Long: `Start the HTTP API and the background scheduler.

The daily volume counters are reset at every session open unless the
scheduler is disabled in the config.

Examples:
  ledger serve -c ledger.yaml
  LEDGER_ADDR=127.0.0.1:9000 ledger serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(ctxOf(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(a.log)
		spec := cfg.Scheduler.VolumeReset
		if spec == "" {
			spec = scheduler.SessionOpenSpec(a.session)
		}
		if err := sched.AddJob(spec, &scheduler.VolumeResetJob{Store: a.store, Timeout: 30 * time.Second}); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := server.New(server.Config{
		Addr:        cfg.Server.Addr,
		Log:         a.log,
		Store:       a.store,
		Broker:      a.engine,
		Valuator:    a.valuator,
		Quotes:      a.quotes,
		Session:     a.session,
		TradeRate:   cfg.Server.TradeRate,
		TradeBurst:  cfg.Server.TradeBurst,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
