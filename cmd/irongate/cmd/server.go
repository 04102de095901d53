package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jmcleod/irongate/config"
	"github.com/jmcleod/irongate/credential"
	"github.com/jmcleod/irongate/eventlog"
	"github.com/jmcleod/irongate/internal/logger"
	"github.com/jmcleod/irongate/metrics"
	"github.com/jmcleod/irongate/server"
)

var (
	listenPort    int
	listenAddress string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the authentication server",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer memguard.Purge()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Listen.Port = listenPort
		}
		if cmd.Flags().Changed("address") {
			cfg.Listen.Address = listenAddress
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		sinks, closeSinks, err := openEventSinks(cfg, reg)
		if err != nil {
			return err
		}
		defer closeSinks()

		store := credential.NewStore(cfg.PasswordFile)
		if _, err := os.Stat(cfg.PasswordFile); err != nil {
			logger.Warn("password file not readable, every login will fail", logger.KeyPath, cfg.PasswordFile, logger.KeyError, err)
		}

		srv := server.New(server.Config{
			Address:       cfg.Listen.Address,
			Port:          cfg.Listen.Port,
			AllowListFile: cfg.AllowListFile,
			PollInterval:  cfg.PollInterval,
			IOPollWindow:  cfg.IOPollWindow,
			WriteTimeout:  cfg.WriteTimeout,
			MaxAttempts:   cfg.MaxAttempts,
			MaxLineLength: cfg.MaxLineLength,
			Banner:        cfg.Banner,
		}, store, server.WithEvents(sinks))
		if err := srv.Bind(); err != nil {
			return fmt.Errorf("failed to bind %s: %w", cfg.ListenAddr(), err)
		}

		var admin *server.Admin
		if cfg.Admin.Enabled {
			admin, err = server.StartAdmin(cfg.Admin.Address, server.NewAdminRouter(reg, srv.Status))
			if err != nil {
				_ = srv.Shutdown()
				return err
			}
		}

		printBanner(cmd.OutOrStdout())
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s (passwords: %s, allow-list: %s)...\n",
			srv.Addr(), cfg.PasswordFile, cfg.AllowListFile)

		// Graceful shutdown on SIGINT/SIGTERM.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runErr := srv.Run(ctx)

		if admin != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Warn("admin shutdown failed", logger.KeyError, err)
			}
		}
		return runErr
	},
}

// openEventSinks builds the recorder chain from config. The returned func
// closes every opened sink.
func openEventSinks(cfg *config.Config, reg prometheus.Registerer) (eventlog.Recorder, func(), error) {
	var (
		sinks   eventlog.Multi
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing event sink", logger.KeyError, err)
			}
		}
	}

	if cfg.Events.File != "" {
		fl, err := eventlog.OpenFile(cfg.Events.File, cfg.Events.Format)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fl)
		closers = append(closers, fl.Close)
	}
	if cfg.Events.BoltPath != "" {
		bl, err := eventlog.OpenBolt(cfg.Events.BoltPath, nil)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, bl)
		closers = append(closers, bl.Close)
	}
	sinks = append(sinks, metrics.New(reg, metrics.WithFailureWindow(cfg.Events.FailureWindow, cfg.Events.FailureThreshold)))
	return sinks, closeAll, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&listenPort, "port", "p", 0, "Port to listen on (overrides config)")
	serverCmd.Flags().StringVar(&listenAddress, "address", "", "Address to bind (overrides config)")
}
