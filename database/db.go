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
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/nordvend/pant/config"
)

// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	for _, create := range []func(*sql.DB) error{
		createCompanyTable,
		createArticleTable,
		createImporterRuleTable,
		createLabelOrderRangeTable,
		createSrnTables,
		createTransactionTable,
		createRejectedRecordTable,
	} {
		if err := create(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func createCompanyTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE SCHEMA IF NOT EXISTS pant;
		CREATE TABLE IF NOT EXISTS pant.companies (
			number TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'RVM_OWNER',
			ip_address TEXT NOT NULL DEFAULT '',
			store_id TEXT NOT NULL DEFAULT '',
			machine_serials TEXT[] NOT NULL DEFAULT '{}',
			version TEXT NOT NULL DEFAULT '15',
			channel TEXT NOT NULL DEFAULT 'SFTP',
			ip_trunking BOOLEAN NOT NULL DEFAULT FALSE,
			allow_data_younger_than_days INT NOT NULL DEFAULT 30,
			notify_about_double_transactions BOOLEAN NOT NULL DEFAULT FALSE,
			notification_emails TEXT[] NOT NULL DEFAULT '{}'
		)
	`)
	return err
}

func createArticleTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pant.articles (
			number TEXT PRIMARY KEY,
			weight INT NOT NULL DEFAULT 0,
			volume INT NOT NULL DEFAULT 0,
			material_code INT NOT NULL DEFAULT 0,
			activation_date TIMESTAMP
		)
	`)
	return err
}

func createImporterRuleTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pant.importer_rules (
			rvm_owner_number TEXT NOT NULL,
			machine_serial TEXT NOT NULL,
			from_ean TEXT NOT NULL,
			to_ean TEXT NOT NULL,
			PRIMARY KEY (rvm_owner_number, machine_serial, from_ean)
		)
	`)
	return err
}

func createLabelOrderRangeTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pant.label_order_ranges (
			customer_number TEXT NOT NULL,
			rvm_owner_number TEXT,
			first_label_number BIGINT NOT NULL,
			last_label_number BIGINT NOT NULL,
			mark_all_labels_as_used BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (customer_number, first_label_number)
		)
	`)
	return err
}

// The SRN clearinghouse mirror: the authoritative historical record of
// accepted units, one table per unit type.
func createSrnTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pant.srn_transactions (
			number TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS pant.srn_bags (
			label_number TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pant.transactions (
			number TEXT PRIMARY KEY,
			base_file_name TEXT NOT NULL,
			type TEXT NOT NULL,
			company_number TEXT NOT NULL,
			store_id TEXT NOT NULL DEFAULT '',
			machine_serial TEXT NOT NULL DEFAULT '',
			label_number TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'ACCEPTED',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			record JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_status ON pant.transactions (status);
		CREATE INDEX IF NOT EXISTS idx_transactions_label ON pant.transactions (label_number)
	`)
	return err
}

func createRejectedRecordTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pant.rejected_records (
			base_file_name TEXT NOT NULL,
			company_number TEXT NOT NULL,
			type TEXT NOT NULL,
			external BOOLEAN NOT NULL DEFAULT FALSE,
			need_to_be_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_since TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (base_file_name, company_number)
		)
	`)
	return err
}
