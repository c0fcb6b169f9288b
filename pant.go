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
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nordvend/pant/config"
	"github.com/nordvend/pant/database"
	"github.com/nordvend/pant/dedup"
	"github.com/nordvend/pant/internal/cache"
	"github.com/nordvend/pant/internal/files"
	"github.com/nordvend/pant/internal/notification"
	redis_db "github.com/nordvend/pant/internal/redis-db"
	"github.com/nordvend/pant/internal/transfer"
	"github.com/nordvend/pant/validation"
)

// Pant is the import pipeline service: it owns the filesystem layout, the
// duplicate index, the rule engine and the queue publisher, and exposes the
// import, job and export operations built on them.
type Pant struct {
	queue      *Queue
	cache      cache.Cache
	dedup      *dedup.Index
	engine     *validation.Engine
	redis      redis.UniversalClient
	datasource database.IDataSource
	mailer     notification.Mailer
	transfer   transfer.SecureTransfer
	layout     files.Layout
}

// NewPant initializes the service with the provided datasource. It fetches
// the configuration and wires the Redis client, the two-tier duplicate
// index, the validation engine, the queue publisher and the mailer.
func NewPant(db database.IDataSource) (*Pant, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	latest, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	mailer, err := notification.NewMailer()
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	newPant := &Pant{
		queue:      newQueue,
		cache:      latest,
		dedup:      dedup.NewIndex(latest, db),
		engine:     validation.NewEngine(db, db, db, db, db),
		redis:      redisClient.Client(),
		datasource: db,
		mailer:     mailer,
		layout:     files.Layout{Root: configuration.Pipeline.Root},
	}
	return newPant, nil
}

// Layout exposes the pipeline's directory layout.
func (p *Pant) Layout() files.Layout {
	return p.layout
}

// Queue exposes the broker publisher; nil when the service runs without a
// broker.
func (p *Pant) Queue() *Queue {
	return p.queue
}

// SetTransfer installs the secure-transfer client used to pull remote
// inboxes and push exports. Optional; without it both stay local.
func (p *Pant) SetTransfer(t transfer.SecureTransfer) {
	p.transfer = t
}
