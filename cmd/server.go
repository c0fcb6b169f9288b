/*
Copyright 2025 Nordvend Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nordvend/pant/api"
	"github.com/nordvend/pant/config"
)

func initializeRouter(b *pantInstance) *gin.Engine {
	return api.NewAPI(b.pant).Router()
}

// startServer runs the HTTP server until interrupted, then drains in-flight
// requests before returning.
func startServer(router *gin.Engine, conf config.ServerConfig) error {
	server := &http.Server{
		Addr:    ":" + conf.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting server on %s\n", conf.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// serverCommands defines the `start` command for running the REST server.
func serverCommands(b *pantInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start pant server",
		Run: func(cmd *cobra.Command, args []string) {
			router := initializeRouter(b)

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}
			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}
