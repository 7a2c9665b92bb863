package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mizuikk/codex-openai-wrapper/internal/api"
	"github.com/mizuikk/codex-openai-wrapper/internal/config"
	"github.com/mizuikk/codex-openai-wrapper/internal/logging"
	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
	"github.com/mizuikk/codex-openai-wrapper/internal/usage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the HTTP gateway.

Loads the configuration, opens the usage store when enabled, and serves the
OpenAI- and Ollama-compatible endpoints until interrupted. The config file is
watched and the reloadable subset applies without a restart.`,
	Run: runServe,
}

func runServe(_ *cobra.Command, _ []string) {
	path := cfgFile
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logging.Configure(logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if cfg.Verbose {
		logging.SetLevel("debug")
	}

	var store *usage.Store
	if cfg.Usage.Enabled {
		store, err = usage.Open(cfg.Usage.DBPath, cfg.Usage.RetentionDays)
		if err != nil {
			log.Fatalf("open usage store: %v", err)
		}
		store.Start()
		defer store.Close()
		log.Infof("usage recording enabled: %s", cfg.Usage.DBPath)
	}

	srv := api.NewServer(cfg, store)

	stopWatch, err := config.Watch(path, func(next *config.Config) {
		srv.Deps().Reload(next)
		logging.SetLevel(next.Logging.Level)
		if next.Verbose {
			logging.SetLevel("debug")
		}
		log.Infof("configuration reloaded from %s", path)
	})
	if err != nil {
		log.WithError(err).Warnf("config watch disabled")
	} else {
		defer stopWatch()
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Run() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil {
			log.Fatalf("server: %v", err)
		}
	case s := <-sig:
		log.Infof("received %s, shutting down", s)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warnf("shutdown incomplete")
		}
	}
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override the configured port")
	rootCmd.AddCommand(serveCmd)
}
