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
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nordvend/pant/config"
	redis_db "github.com/nordvend/pant/internal/redis-db"
	"github.com/nordvend/pant/model"
)

// jobTriggerPrefix groups all on-demand job task types under one ServeMux
// pattern.
const jobTriggerPrefix = "job:"

// processImport consumes one accepted unit from either import lane and
// runs its second stage: persistence, backup and confirmation.
func (b *pantInstance) processImport(ctx context.Context, t *asynq.Task) error {
	var msg model.ImportMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.pant.ProcessAccepted(ctx, msg); err != nil {
		logrus.Infof("Unit %s pushed back for retry due to error: %v", msg.FileName, err)
		return err
	}

	log.Println(" [*] Unit Processed", msg.FileName)
	return nil
}

// processJobTrigger runs a scanner job on demand. The task type carries the
// job name.
func (b *pantInstance) processJobTrigger(ctx context.Context, t *asynq.Task) error {
	return b.pant.RunJob(ctx, t.Type())
}

// handleProcessingError runs after every failed task. Once an import task
// has exhausted its retries the stored unit is flagged FAILED so the backup
// reimporter picks it up; job triggers have nothing to flag.
func (b *pantInstance) handleProcessingError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if retried < maxRetry {
		return
	}
	if strings.HasPrefix(task.Type(), jobTriggerPrefix) {
		return
	}

	var msg model.ImportMessage
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		logrus.Error(err)
		return
	}
	logrus.Errorf("Unit %s exhausted retries: %v", msg.FileName, err)
	if err := b.pant.MarkImportFailed(ctx, msg); err != nil {
		logrus.Error(err)
	}
}

// initializeQueues weights the lanes: the ordinary import lane gets most of
// the concurrency, big files and job triggers one slot each so neither can
// crowd out regular units.
func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.TransactionQueue] = 3
	queues[cfg.Queue.BigFileQueue] = 1
	queues[cfg.Queue.JobsQueue] = 1
	return queues
}

func initializeWorkerServer(b *pantInstance, conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisOption.Addr,
			Password: redisOption.Password,
			DB:       redisOption.DB,
		},
		asynq.Config{
			Concurrency:  1,
			Queues:       queues,
			ErrorHandler: asynq.ErrorHandlerFunc(b.handleProcessingError),
		},
	), nil
}

func initializeTaskHandlers(b *pantInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	mux.HandleFunc(cfg.Queue.TransactionQueue, b.processImport)
	mux.HandleFunc(cfg.Queue.BigFileQueue, b.processImport)
	mux.HandleFunc(jobTriggerPrefix, b.processJobTrigger)
}

// workerCommands defines the "workers" command to start the broker
// consumers for both import lanes and the job triggers.
func workerCommands(b *pantInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start pant workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error fetching config: %v", err)
			}

			queues := initializeQueues()
			srv, err := initializeWorkerServer(b, conf, queues)
			if err != nil {
				log.Fatalf("Error initializing worker server: %v", err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("Error running worker server: %v", err)
			}
		},
	}
	return cmd
}
