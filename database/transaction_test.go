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

package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordvend/pant/model"
)

func newMockDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Datasource{Conn: db}, mock
}

func TestRecordTransaction(t *testing.T) {
	ds, mock := newMockDatasource(t)

	txn := &model.StoredTransaction{
		Number:        "T202406150001",
		BaseFileName:  "T202406150001",
		Type:          model.UnitTransaction,
		CompanyNumber: "9934",
		StoreID:       "5501",
		MachineSerial: "RVM001",
		Status:        model.StatusAccepted,
		CreatedAt:     time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO pant.transactions`)).
		WithArgs(txn.Number, txn.BaseFileName, string(txn.Type), txn.CompanyNumber, txn.StoreID,
			txn.MachineSerial, txn.LabelNumber, string(txn.Status), txn.CreatedAt, []byte(nil)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := ds.RecordTransaction(context.Background(), txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkTransactionFailed(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE pant.transactions SET status = 'FAILED' WHERE base_file_name = $1`)).
		WithArgs("T202406150001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.MarkTransactionFailed(context.Background(), "T202406150001")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionExistsByNumber(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM pant.transactions WHERE number = $1)`)).
		WithArgs("T202406150001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := ds.TransactionExistsByNumber(context.Background(), "T202406150001")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLabelUsed(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM pant.transactions WHERE label_number = $1)`)).
		WithArgs("1500000").
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(false))

	used, err := ds.LabelUsed(context.Background(), "1500000")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestUnitExistsPerType(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM pant.srn_transactions WHERE number = $1)`)).
		WithArgs("T202406150001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := ds.UnitExists(context.Background(), model.UnitTransaction, "T202406150001")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM pant.srn_bags WHERE label_number = $1)`)).
		WithArgs("1500000").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err = ds.UnitExists(context.Background(), model.UnitBag, "1500000")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUnitIdempotent(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO pant.srn_bags (label_number) VALUES ($1) ON CONFLICT (label_number) DO NOTHING`)).
		WithArgs("1500000").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.RecordUnit(context.Background(), model.UnitBag, "1500000")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindFailedTransactions(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"number", "base_file_name", "type", "company_number", "store_id", "machine_serial", "label_number", "status", "created_at"}).
		AddRow("T1", "T1", "TRANSACTION", "9934", "5501", "RVM001", "", "FAILED", now)

	mock.ExpectQuery(`SELECT .* FROM pant.transactions`).
		WillReturnRows(rows)

	txns, err := ds.FindFailedTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, model.StatusFailed, txns[0].Status)
}
