package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/skynet-control/internal/config"
	"github.com/cuemby/skynet-control/pkg/api"
	"github.com/cuemby/skynet-control/pkg/events"
	"github.com/cuemby/skynet-control/pkg/gatewayclient"
	"github.com/cuemby/skynet-control/pkg/log"
	"github.com/cuemby/skynet-control/pkg/metrics"
	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/ratelimit"
	"github.com/cuemby/skynet-control/pkg/readmodel"
	"github.com/cuemby/skynet-control/pkg/reaper"
	"github.com/cuemby/skynet-control/pkg/registry"
	"github.com/cuemby/skynet-control/pkg/scheduler"
	"github.com/cuemby/skynet-control/pkg/store"
	"github.com/cuemby/skynet-control/pkg/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "skynet-control",
	Short:   "skynet-control is the control plane for a task queue dispatched across remote execution gateways",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"skynet-control version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(submitCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane: API server, scheduler, and stale-lock reaper",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		addr, _ := cmd.Flags().GetString("addr")

		s, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()
		metrics.RegisterComponent("store", true, "ready")

		mainLog := log.WithComponent("main")

		broker := events.NewBroker()
		defer broker.Stop()

		q := queue.New(s)
		q.SetBroker(broker)
		reg := registry.New()
		gc := gatewayclient.New(&http.Client{})
		rm := readmodel.New(q, reg)
		limiter := ratelimit.New(cfg.RateLimitPerMinute)
		limiter.StartCleanupJob(cmd.Context().Done())

		for _, url := range cfg.GatewayURLs {
			gwID := url
			reg.RegisterGateway(&types.Gateway{GatewayID: gwID, Host: url})
			mainLog.Info().Str("gateway_id", gwID).Str("host", url).Msg("registered gateway from config")
		}

		sched := scheduler.New(q, reg, gc, cfg.SchedulerPoll)
		rp := reaper.New(q, reg, gc, cfg.TaskLockTTL, cfg.ReaperPoll)
		collector := metrics.NewCollector(q, reg)

		sched.Start()
		rp.Start()
		collector.Start()
		metrics.RegisterComponent("scheduler", true, "ready")
		metrics.SetVersion(Version)

		apiServer := api.New(api.Config{
			Queue:         q,
			Registry:      reg,
			GatewayClient: gc,
			ReadModel:     rm,
			Broker:        broker,
			Limiter:       limiter,
			APIKey:        cfg.APIKey,
		})

		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(addr); err != nil {
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
		time.Sleep(200 * time.Millisecond)
		metrics.RegisterComponent("api", true, "ready")

		mainLog.Info().Str("addr", addr).Msg("skynet-control serving")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			mainLog.Info().Msg("shutting down")
		case err := <-errCh:
			mainLog.Error().Err(err).Msg("server error")
		}

		var g errgroup.Group
		g.Go(func() error { sched.Stop(); return nil })
		g.Go(func() error { rp.Stop(); return nil })
		g.Go(func() error { collector.Stop(); return nil })
		_ = g.Wait()

		return apiServer.Stop()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema without starting the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		s, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()
		fmt.Printf("schema applied to %s\n", cfg.DBPath)
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "API listen address")
}
