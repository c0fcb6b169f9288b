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
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/nordvend/pant/model"
)

func (d Datasource) ArticleByNumber(ctx context.Context, number string) (*model.Article, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT number, weight, volume, material_code, COALESCE(activation_date, '0001-01-01')
		FROM pant.articles
		WHERE number = $1
	`, number)

	a := &model.Article{}
	err := row.Scan(&a.Number, &a.Weight, &a.Volume, &a.MaterialCode, &a.ActivationDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "article %s", number)
	}
	return a, nil
}

func (d Datasource) ArticlesByMaterialCodes(ctx context.Context, codes []int) ([]model.Article, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT number, weight, volume, material_code, COALESCE(activation_date, '0001-01-01')
		FROM pant.articles
		WHERE material_code = ANY($1)
		ORDER BY number
	`, pq.Array(codes))
	if err != nil {
		return nil, errors.Wrap(err, "querying articles by material codes")
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var a model.Article
		if err := rows.Scan(&a.Number, &a.Weight, &a.Volume, &a.MaterialCode, &a.ActivationDate); err != nil {
			return nil, errors.Wrap(err, "scanning article")
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (d Datasource) RulesFor(ctx context.Context, ownerNumber, machineSerial string) ([]model.ImporterRule, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT rvm_owner_number, machine_serial, from_ean, to_ean
		FROM pant.importer_rules
		WHERE rvm_owner_number = $1 AND machine_serial = $2
	`, ownerNumber, machineSerial)
	if err != nil {
		return nil, errors.Wrap(err, "querying importer rules")
	}
	defer rows.Close()

	var rules []model.ImporterRule
	for rows.Next() {
		var r model.ImporterRule
		if err := rows.Scan(&r.RvmOwnerNumber, &r.MachineSerial, &r.FromEan, &r.ToEan); err != nil {
			return nil, errors.Wrap(err, "scanning importer rule")
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ExistsWithinRange reports whether label sits in a non-exhausted
// label-order range for the customer.
func (d Datasource) ExistsWithinRange(ctx context.Context, customerNumber string, label int64) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM pant.label_order_ranges
			WHERE customer_number = $1
			AND first_label_number <= $2 AND last_label_number >= $2
			AND NOT mark_all_labels_as_used
		)
	`, customerNumber, label).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "checking label range for customer %s", customerNumber)
	}
	return exists, nil
}
