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
	"errors"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-calistenia/aura-state/pkg/notify"
	"github.com/aura-calistenia/aura-state/pkg/storage"
)

// setupRouter builds the REST surface of the state service.
func setupRouter(store *storage.Store, notifier *notify.SMTPNotifier) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - Logs to stdout.
	//   - RFC3339 with UTC time format.
	router.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	router.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// Healthcheck
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "online"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/storage/status", getStorageStatusHandler(store))
		v1.GET("/notify/status", getNotifyStatusHandler(notifier))
	}

	return router
}

// startRestAPI serves the router in the background and hands back the server
// for graceful shutdown.
func startRestAPI(router *gin.Engine, port int) *http.Server {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorf("REST API failed: %s", err)
		}
	}()

	return server
}

func getStorageStatusHandler(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.Status(c.Request.Context()))
	}
}

func getNotifyStatusHandler(notifier *notify.SMTPNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, notifier.Status())
	}
}
