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

package pant

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/nordvend/pant/config"
	redis_db "github.com/nordvend/pant/internal/redis-db"
	"github.com/nordvend/pant/model"
)

// Queue publishes accepted units and job triggers to the broker. The
// underlying client is started lazily on first use so that processes which
// never publish (the cron runner, migrations) do not hold a connection.
type Queue struct {
	opts asynq.RedisClientOpt

	mu     sync.Mutex
	client *asynq.Client
}

// NewQueue initializes a new Queue instance from the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}
	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	return &Queue{opts: queueOptions}
}

func (q *Queue) conn() *asynq.Client {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client == nil {
		q.client = asynq.NewClient(q.opts)
	}
	return q.client
}

// Close releases the broker connection if one was opened.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client == nil {
		return nil
	}
	err := q.client.Close()
	q.client = nil
	return err
}

// laneFor picks the queue for a payload of the given size. Payloads above
// the configured threshold go to the big-file lane so that oversized files
// cannot starve the ordinary stream.
func laneFor(cfg *config.Configuration, size int64) string {
	if size > cfg.Pipeline.BigFileThreshold {
		return cfg.Queue.BigFileQueue
	}
	return cfg.Queue.TransactionQueue
}

// Dispatch publishes an accepted bundle for second-stage processing. The
// task id is the bundle base name, so re-publishing the same unit while a
// task is still pending is a no-op rather than a duplicate.
func (q *Queue) Dispatch(ctx context.Context, b *model.FileBundle, company *model.CompanyProfile) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	var size int64
	if info, statErr := os.Stat(filepath.Join(b.Dir, b.PrimaryPayload())); statErr == nil {
		size = info.Size()
	}
	lane := laneFor(cfg, size)

	payload, err := json.Marshal(model.ImportMessage{
		FileName:  b.PrimaryPayload(),
		CompanyID: company.Number,
		Type:      b.Type,
		Payloads:  b.Payloads,
	})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(b.BaseName),
		asynq.Queue(lane),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(lane, payload, taskOptions...)
	info, err := q.conn().EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Printf(" [*] Unit already pending, skipping enqueue: %s", b.BaseName)
		return nil
	}
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued unit: %s -> %s", b.BaseName, lane)
	return nil
}

// TriggerJob publishes an on-demand run of a named scanner job to the
// jobs lane.
func (q *Queue) TriggerJob(ctx context.Context, jobName string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	task := asynq.NewTask(jobName, nil, asynq.Queue(cfg.Queue.JobsQueue))
	info, err := q.conn().EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued job trigger: %s", jobName)
	return nil
}
