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

	"github.com/nordvend/pant/model"
)

// IDataSource groups the store operations the pipeline consumes.
type IDataSource interface {
	company
	article
	labelOrder
	srn
	transactionStore
	rejectedRecord
}

// company is the read-only directory of machine owners.
type company interface {
	FindAllCompanies(ctx context.Context) ([]model.CompanyProfile, error)
	CompanyByNumber(ctx context.Context, number string) (*model.CompanyProfile, error)
	CompanyFirstByIPAddress(ctx context.Context, ip string) (*model.CompanyProfile, error)
	CharityExists(ctx context.Context, number string) (bool, error)
}

// article covers the catalog and the importer EAN remap rules.
type article interface {
	ArticleByNumber(ctx context.Context, number string) (*model.Article, error)
	ArticlesByMaterialCodes(ctx context.Context, codes []int) ([]model.Article, error)
	RulesFor(ctx context.Context, ownerNumber, machineSerial string) ([]model.ImporterRule, error)
}

type labelOrder interface {
	ExistsWithinRange(ctx context.Context, customerNumber string, label int64) (bool, error)
}

// srn is the authoritative historical dedup store (the external
// clearinghouse mirror).
type srn interface {
	UnitExists(ctx context.Context, t model.UnitType, key string) (bool, error)
	RecordUnit(ctx context.Context, t model.UnitType, key string) error
}

type transactionStore interface {
	RecordTransaction(ctx context.Context, txn *model.StoredTransaction) error
	TransactionExistsByNumber(ctx context.Context, number string) (bool, error)
	LabelUsed(ctx context.Context, label string) (bool, error)
	MarkTransactionFailed(ctx context.Context, baseFileName string) error
	FindFailedTransactions(ctx context.Context) ([]model.StoredTransaction, error)
	DeleteTransaction(ctx context.Context, number string) error
}

type rejectedRecord interface {
	CreateRejectedRecord(ctx context.Context, rec *model.RejectedRecord) error
	FindRecordsNeedingDeletion(ctx context.Context) ([]model.RejectedRecord, error)
	MarkRejectedRecordDeleted(ctx context.Context, baseFileName, companyNumber string) error
	DeleteRejectedRecord(ctx context.Context, baseFileName, companyNumber string) error
}
