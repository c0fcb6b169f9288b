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
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/nordvend/pant/model"
)

// RecordTransaction persists an accepted (or failed second-stage) unit in
// the transactional store. The natural key is the transaction number, or
// the label number for bags.
func (d Datasource) RecordTransaction(ctx context.Context, txn *model.StoredTransaction) error {
	var recordJSON []byte
	if txn.Record != nil {
		var err error
		recordJSON, err = json.Marshal(txn.Record)
		if err != nil {
			return errors.Wrap(err, "marshalling parsed record")
		}
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO pant.transactions(number, base_file_name, type, company_number, store_id, machine_serial, label_number, status, created_at, record)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (number) DO NOTHING
	`, txn.Number, txn.BaseFileName, txn.Type, txn.CompanyNumber, txn.StoreID,
		txn.MachineSerial, txn.LabelNumber, txn.Status, txn.CreatedAt, recordJSON)
	if err != nil {
		return errors.Wrapf(err, "recording transaction %s", txn.Number)
	}
	return nil
}

func (d Datasource) TransactionExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM pant.transactions WHERE number = $1)
	`, number).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "checking transaction %s", number)
	}
	return exists, nil
}

// LabelUsed reports whether a label was consumed by the transactional
// store or by the SRN bag index.
func (d Datasource) LabelUsed(ctx context.Context, label string) (bool, error) {
	var used bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM pant.transactions WHERE label_number = $1)
		OR EXISTS(SELECT 1 FROM pant.srn_bags WHERE label_number = $1)
	`, label).Scan(&used)
	if err != nil {
		return false, errors.Wrapf(err, "checking label usage %s", label)
	}
	return used, nil
}

// MarkTransactionFailed flags a stored unit FAILED once second-stage
// processing has exhausted its retries, handing it to the backup
// reimporter.
func (d Datasource) MarkTransactionFailed(ctx context.Context, baseFileName string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE pant.transactions SET status = 'FAILED' WHERE base_file_name = $1
	`, baseFileName)
	return errors.Wrapf(err, "flagging transaction %s as failed", baseFileName)
}

// FindFailedTransactions lists stored units flagged FAILED, for the backup
// reimporter.
func (d Datasource) FindFailedTransactions(ctx context.Context) ([]model.StoredTransaction, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT number, base_file_name, type, company_number, store_id, machine_serial, label_number, status, created_at
		FROM pant.transactions
		WHERE status = 'FAILED'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, errors.Wrap(err, "querying failed transactions")
	}
	defer rows.Close()

	var txns []model.StoredTransaction
	for rows.Next() {
		var txn model.StoredTransaction
		if err := rows.Scan(&txn.Number, &txn.BaseFileName, &txn.Type, &txn.CompanyNumber,
			&txn.StoreID, &txn.MachineSerial, &txn.LabelNumber, &txn.Status, &txn.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning failed transaction")
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (d Datasource) DeleteTransaction(ctx context.Context, number string) error {
	_, err := d.Conn.ExecContext(ctx, `DELETE FROM pant.transactions WHERE number = $1`, number)
	return errors.Wrapf(err, "deleting transaction %s", number)
}

// UnitExists checks the SRN historical index for a unit.
func (d Datasource) UnitExists(ctx context.Context, t model.UnitType, key string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM pant.srn_transactions WHERE number = $1)`
	if t == model.UnitBag {
		query = `SELECT EXISTS(SELECT 1 FROM pant.srn_bags WHERE label_number = $1)`
	}

	var exists bool
	if err := d.Conn.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "checking srn index for %s %s", t, key)
	}
	return exists, nil
}

// RecordUnit writes a unit into the SRN historical index. Idempotent.
func (d Datasource) RecordUnit(ctx context.Context, t model.UnitType, key string) error {
	query := `INSERT INTO pant.srn_transactions (number) VALUES ($1) ON CONFLICT (number) DO NOTHING`
	if t == model.UnitBag {
		query = `INSERT INTO pant.srn_bags (label_number) VALUES ($1) ON CONFLICT (label_number) DO NOTHING`
	}

	_, err := d.Conn.ExecContext(ctx, query, key)
	return errors.Wrapf(err, "recording srn unit %s %s", t, key)
}
