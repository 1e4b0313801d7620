package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"etl-pipeline-manager/internal/alert"
	"etl-pipeline-manager/internal/api"
	"etl-pipeline-manager/internal/config"
	"etl-pipeline-manager/internal/manager"
	"etl-pipeline-manager/internal/model"
	"etl-pipeline-manager/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func serve(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	m := manager.New(s, nil, cfg.HealthCacheTTL)
	defer m.Close()

	rules := alert.DefaultRules()
	for i := range rules {
		switch rules[i].Type {
		case model.AlertRuleJobDuration:
			rules[i].MaxDuration = cfg.AlertMaxDuration
		case model.AlertRuleRecordCount:
			rules[i].MinRecords = cfg.AlertMinRecords
		}
	}
	m.Alerts().SetRules(rules)
	m.ResumeSchedules()

	stopMaintenance := startMaintenance(m, cfg)
	defer stopMaintenance()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewRouter(m).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("http server listening")
		errCh <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// startMaintenance runs the periodic sweeps: expired alert silences and run
// history retention. Returns a stop function.
func startMaintenance(m *manager.Manager, cfg *config.Config) func() {
	done := make(chan struct{})
	ticker := time.NewTicker(cfg.SilenceSweep)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if n, err := m.Alerts().ClearExpiredSilences(); err != nil {
					log.WithError(err).Warn("silence sweep failed")
				} else if n > 0 {
					log.WithField("reactivated", n).Info("expired silences cleared")
				}

				if cfg.RunRetention > 0 {
					cutoff := time.Now().UTC().Add(-cfg.RunRetention)
					if n, err := m.PruneRuns(cutoff); err != nil {
						log.WithError(err).Warn("run retention prune failed")
					} else if n > 0 {
						log.WithField("pruned", n).Info("old runs pruned")
					}
				}
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}
