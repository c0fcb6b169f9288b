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
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/nordvend/pant/model"
)

const companyColumns = `number, name, type, ip_address, store_id, machine_serials, version, channel, ip_trunking, allow_data_younger_than_days, notify_about_double_transactions, notification_emails`

func scanCompany(row interface{ Scan(...interface{}) error }) (*model.CompanyProfile, error) {
	c := &model.CompanyProfile{}
	var serials, emails pq.StringArray
	var version string
	err := row.Scan(&c.Number, &c.Name, &c.Type, &c.IPAddress, &c.StoreID, &serials,
		&version, &c.Channel, &c.IPTrunking, &c.AllowDataYoungerThanDays,
		&c.NotifyAboutDoubleTransactions, &emails)
	if err != nil {
		return nil, err
	}
	c.MachineSerials = serials
	c.NotificationEmails = emails
	c.Version = model.FormatVersion(version)
	return c, nil
}

func (d Datasource) FindAllCompanies(ctx context.Context) ([]model.CompanyProfile, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM pant.companies ORDER BY number`, companyColumns))
	if err != nil {
		return nil, errors.Wrap(err, "querying companies")
	}
	defer rows.Close()

	var companies []model.CompanyProfile
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning company")
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

func (d Datasource) CompanyByNumber(ctx context.Context, number string) (*model.CompanyProfile, error) {
	row := d.Conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM pant.companies WHERE number = $1`, companyColumns), number)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "company %s", number)
	}
	return c, nil
}

func (d Datasource) CompanyFirstByIPAddress(ctx context.Context, ip string) (*model.CompanyProfile, error) {
	row := d.Conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM pant.companies WHERE ip_address = $1 ORDER BY number LIMIT 1`, companyColumns), ip)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "company by ip %s", ip)
	}
	return c, nil
}

func (d Datasource) CharityExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM pant.companies WHERE number = $1 AND type = 'CHARITY')
	`, number).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "checking charity %s", number)
	}
	return exists, nil
}
