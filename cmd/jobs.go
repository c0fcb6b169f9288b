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
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nordvend/pant"
	"github.com/nordvend/pant/config"
	"github.com/nordvend/pant/internal/transfer"
)

// jobsCommands defines the "jobs" command to run the cron scheduler. The
// scheduler drives the staging importer, the reimporters and the cleanup
// jobs on their configured specs.
func jobsCommands(b *pantInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "start pant scheduled jobs",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			// The staging importer pulls remote SFTP inboxes when a host
			// is configured.
			if cfg.Sftp.Host != "" {
				sftp, err := transfer.Connect(cfg.Sftp)
				if err != nil {
					log.Fatalf("Error connecting sftp: %v", err)
				}
				defer sftp.Close()
				b.pant.SetTransfer(sftp)
			}

			scheduler := pant.NewScheduler(b.pant)
			if err := scheduler.Start(); err != nil {
				log.Fatalf("Error starting scheduler: %v", err)
			}
			log.Println(" [*] Scheduler started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			scheduler.Stop()
		},
	}
	return cmd
}
