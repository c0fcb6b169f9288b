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

package redlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestLockerLockSuccess(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "job-lock:staging_import", "job_holder-a")

	mock.ExpectSetNX("job-lock:staging_import", "job_holder-a", 5*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerLockAlreadyHeld(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "job-lock:staging_import", "job_holder-a")

	mock.ExpectSetNX("job-lock:staging_import", "job_holder-a", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.EqualError(t, err, "lock for key job-lock:staging_import is already held")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerLockRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "job-lock:staging_import", "job_holder-a")

	mock.ExpectSetNX("job-lock:staging_import", "job_holder-a", 5*time.Second).SetErr(errors.New("connection refused"))

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.EqualError(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerUnlockSuccess(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "job-lock:staging_import", "job_holder-a")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"job-lock:staging_import"}, "job_holder-a").SetVal(int64(1))

	err := locker.Unlock(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerUnlockNotHolder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "job-lock:staging_import", "job_holder-a")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	mock.ExpectEval(script, []string{"job-lock:staging_import"}, "job_holder-a").SetVal(int64(0))

	err := locker.Unlock(context.Background())
	assert.EqualError(t, err, "unlock failed, either lock expired or you're not the lock holder for key job-lock:staging_import")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerExtendSuccess(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "job-lock:staging_import", "job_holder-a")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	mock.ExpectEval(script, []string{"job-lock:staging_import"}, "job_holder-a", "10000").SetVal(int64(1))

	err := locker.ExtendLock(context.Background(), 10*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockerExtendExpired(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "job-lock:staging_import", "job_holder-a")

	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	mock.ExpectEval(script, []string{"job-lock:staging_import"}, "job_holder-a", "10000").SetVal(int64(0))

	err := locker.ExtendLock(context.Background(), 10*time.Second)
	assert.EqualError(t, err, "lock extension failed for key job-lock:staging_import, either lock expired or you're not the holder")
	assert.NoError(t, mock.ExpectationsWereMet())
}
