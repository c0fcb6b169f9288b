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

// Package dedup answers "has this unit already been accepted". Two tiers
// behind one interface: a short-retention latest index (cheap existence
// probe, Redis) checked first, then the authoritative SRN historical store.
// If either tier reports existence the unit is a duplicate; the historical
// lookup only runs when the latest tier misses.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/nordvend/pant/internal/cache"
	"github.com/nordvend/pant/model"
)

// HistoricalStore is the authoritative long-retention record of accepted
// units, one namespace per unit type.
type HistoricalStore interface {
	UnitExists(ctx context.Context, t model.UnitType, key string) (bool, error)
	RecordUnit(ctx context.Context, t model.UnitType, key string) error
}

// Index is the two-tier duplicate check.
type Index struct {
	latest     cache.Cache
	historical HistoricalStore
}

// NewIndex wires the two tiers.
func NewIndex(latest cache.Cache, historical HistoricalStore) *Index {
	return &Index{latest: latest, historical: historical}
}

func latestKey(t model.UnitType, key string) string {
	switch t {
	case model.UnitBag:
		return fmt.Sprintf("latest:bag:%s", key)
	default:
		return fmt.Sprintf("latest:transaction:%s", key)
	}
}

// IsDuplicate reports whether the unit was already accepted. The latest
// tier short-circuits the historical lookup.
func (i *Index) IsDuplicate(ctx context.Context, t model.UnitType, key string) (bool, error) {
	ok, err := i.latest.Exists(ctx, latestKey(t, key))
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return i.historical.UnitExists(ctx, t, key)
}

// Record marks the unit as accepted in both tiers. The latest entry
// expires with ttl, normally the owning company's dedup window; the
// historical entry is permanent.
func (i *Index) Record(ctx context.Context, t model.UnitType, key string, ttl time.Duration) error {
	if err := i.historical.RecordUnit(ctx, t, key); err != nil {
		return err
	}
	return i.latest.Set(ctx, latestKey(t, key), "1", ttl)
}
