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

	"github.com/pkg/errors"

	"github.com/nordvend/pant/model"
)

// CreateRejectedRecord upserts on the value key (base file name, company):
// rejecting the same bundle twice must not create two rows. An external
// deletion signal flips need_to_be_deleted on the existing row.
func (d Datasource) CreateRejectedRecord(ctx context.Context, rec *model.RejectedRecord) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO pant.rejected_records (base_file_name, company_number, type, external, need_to_be_deleted, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (base_file_name, company_number)
		DO UPDATE SET need_to_be_deleted = EXCLUDED.need_to_be_deleted, external = EXCLUDED.external
	`, rec.BaseFileName, rec.CompanyNumber, rec.Type, rec.External, rec.NeedToBeDeleted, rec.CreatedAt)
	return errors.Wrapf(err, "creating rejected record %s", rec.Key())
}

func (d Datasource) FindRecordsNeedingDeletion(ctx context.Context) ([]model.RejectedRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT base_file_name, company_number, type, external, need_to_be_deleted, deleted_since, created_at
		FROM pant.rejected_records
		WHERE need_to_be_deleted AND deleted_since IS NULL
		ORDER BY created_at
	`)
	if err != nil {
		return nil, errors.Wrap(err, "querying rejected records needing deletion")
	}
	defer rows.Close()

	var records []model.RejectedRecord
	for rows.Next() {
		var rec model.RejectedRecord
		if err := rows.Scan(&rec.BaseFileName, &rec.CompanyNumber, &rec.Type, &rec.External,
			&rec.NeedToBeDeleted, &rec.DeletedSince, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning rejected record")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (d Datasource) MarkRejectedRecordDeleted(ctx context.Context, baseFileName, companyNumber string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE pant.rejected_records SET deleted_since = NOW()
		WHERE base_file_name = $1 AND company_number = $2
	`, baseFileName, companyNumber)
	return errors.Wrapf(err, "marking rejected record deleted %s:%s", baseFileName, companyNumber)
}

func (d Datasource) DeleteRejectedRecord(ctx context.Context, baseFileName, companyNumber string) error {
	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM pant.rejected_records
		WHERE base_file_name = $1 AND company_number = $2
	`, baseFileName, companyNumber)
	return errors.Wrapf(err, "deleting rejected record %s:%s", baseFileName, companyNumber)
}
