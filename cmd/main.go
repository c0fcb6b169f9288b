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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nordvend/pant"
	"github.com/nordvend/pant/config"
	"github.com/nordvend/pant/database"
	"github.com/nordvend/pant/internal/notification"
)

// Pant represents the CLI application, encapsulating the root Cobra command.
type Pant struct {
	cmd *cobra.Command
}

// pantInstance holds the service instance and its configuration, shared by
// every subcommand.
type pantInstance struct {
	pant *pant.Pant
	cnf  *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the
// error before exiting.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the service before any
// subcommand runs.
func preRun(app *pantInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newPant, err := setupPant(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.pant = newPant
		app.cnf = cnf
		return nil
	}
}

// setupPant wires the service from its configuration: datasource first,
// then the service on top of it.
func setupPant(cfg *config.Configuration) (*pant.Pant, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newPant, err := pant.NewPant(db)
	if err != nil {
		return nil, fmt.Errorf("error creating pant: %v", err)
	}
	return newPant, nil
}

// NewCLI creates the command-line interface for the import server.
func NewCLI() *Pant {
	var configFile string
	b := &pantInstance{}

	var rootCmd = &cobra.Command{
		Use:   "pant",
		Short: "RVM deposit-return import server",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./pant.json", "Configuration file for the import server")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(jobsCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Pant{cmd: rootCmd}
}

func (w Pant) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
