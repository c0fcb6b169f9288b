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

	"github.com/spf13/cobra"

	"github.com/nordvend/pant/config"
	"github.com/nordvend/pant/database"
	"github.com/nordvend/pant/internal/files"
	"github.com/nordvend/pant/model"
)

// migrateCommands creates the command for initializing the schema and the
// pipeline directory tree. Connecting applies the schema; the stage
// directories are created afterwards so the scanners never race mkdir.
func migrateCommands(_ *pantInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "initialize pant schema and pipeline directories",
		Run: func(cmd *cobra.Command, args []string) {
			cnf, err := config.Fetch()
			if err != nil {
				log.Printf("Error fetching config: %v", err)
				return
			}

			if _, err := database.ConnectDB(cnf.DataSource.Dns); err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}

			layout := files.Layout{Root: cnf.Pipeline.Root}
			for _, t := range []model.UnitType{model.UnitTransaction, model.UnitBag} {
				for _, dir := range []string{
					layout.InQueue(t),
					layout.InQueueBig(t),
					layout.Accepted(t),
					layout.AlreadyExists(t),
					layout.Backup(t),
					layout.Confirmed(t),
					layout.Export(t),
				} {
					if err := files.EnsureDir(dir); err != nil {
						log.Printf("Error creating %s: %v", dir, err)
						return
					}
				}
			}
			log.Println("Schema and pipeline directories ready ✅")
		},
	}
	return cmd
}
