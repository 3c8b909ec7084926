// Copyright 2025 Aura Calistenia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aura-calistenia/aura-state/pkg/config"
	"github.com/aura-calistenia/aura-state/pkg/filesystem"
	"github.com/aura-calistenia/aura-state/pkg/logger"
	"github.com/aura-calistenia/aura-state/pkg/notify"
	"github.com/aura-calistenia/aura-state/pkg/seed"
	"github.com/aura-calistenia/aura-state/pkg/storage"
)

var buildtime string

func main() {
	logger.Initialize()
	defer func() {
		_ = logger.Sync()
	}()

	zap.S().Infof("This is aura-state build date: %s", buildtime)

	ctx := context.Background()

	cfg, err := config.NewLoader().Load(ctx)
	if err != nil {
		zap.S().Fatalf("Failed to load configuration: %s", err)
	}

	local := storage.NewLocalBackend(cfg.DataDir, filesystem.NewDefaultService())

	var remote storage.RemoteBackend
	if cfg.RemoteEnabled() {
		zap.S().Infof("Database configured via %s", cfg.DatabaseURLSource)
		pg, err := storage.NewPostgresBackend(ctx, cfg.DatabaseURL, cfg.TableName)
		if err != nil {
			zap.S().Warnf("Cannot set up the database pool, continuing with local files: %s", err)
		} else {
			remote = pg
			defer pg.Close()
		}
	} else {
		zap.S().Infof("No database configured, documents stay in %s", cfg.DataDir)
	}

	store := storage.New(cfg, local, remote)

	if remote != nil {
		bootstrapRemote(ctx, remote)
	}

	if err := seed.EnsureDocuments(ctx, store, cfg); err != nil {
		zap.S().Fatalf("Failed to seed boot documents: %s", err)
	}

	notifier := notify.NewSMTPNotifier(notify.SettingsFromEnv())

	// Prometheus
	metricsPath := "/metrics"
	metricsPort := ":2112"
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	http.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(metricsPort, nil)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()

	zap.S().Debugf("Setting up healthcheck")

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(100))
	if remote != nil {
		health.AddReadinessCheck("database", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return remote.Ping(pingCtx)
		})
	}
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe("0.0.0.0:8086", health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()

	server := startRestAPI(setupRouter(store, notifier), cfg.HTTPPort)
	zap.S().Infof("REST API listening on :%d", cfg.HTTPPort)

	// Kubernetes sends SIGTERM 30 seconds before shutting down the pod.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigs
	zap.S().Infof("Received %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.S().Warnf("REST API shutdown: %s", err)
	}

	// Let in-flight notification emails finish before the pool closes.
	notifier.Wait()

	zap.S().Infof("Successful shutdown. Exiting.")
}

// bootstrapRemote creates the document table, retrying while a cold or
// autosuspended database comes back up. Failure is not fatal, the store
// keeps serving from local files and the status panel reports the fault.
func bootstrapRemote(ctx context.Context, remote storage.RemoteBackend) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second

	err := backoff.RetryNotify(func() error {
		return remote.Bootstrap(ctx)
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		zap.S().Warnf("Database bootstrap failed, retrying in %s: %s", next.Round(time.Millisecond), err)
	})
	if err != nil {
		zap.S().Warnf("Database bootstrap did not finish, continuing with local files: %s", err)
	}
}
