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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redis_db "github.com/nordvend/pant/internal/redis-db"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis_db.NewRedisClient([]string{mr.Addr()})
	require.NoError(t, err)
	return NewFromRedis(client)
}

func TestSetGetDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "latest:transaction:T1", "seen", time.Minute))

	var got string
	require.NoError(t, c.Get(ctx, "latest:transaction:T1", &got))
	assert.Equal(t, "seen", got)

	require.NoError(t, c.Delete(ctx, "latest:transaction:T1"))
	err := c.Get(ctx, "latest:transaction:T1", &got)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestExists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "latest:bag:B1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "latest:bag:B1", "seen", time.Minute))
	ok, err = c.Exists(ctx, "latest:bag:B1")
	require.NoError(t, err)
	assert.True(t, ok)
}
