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

package model

import "time"

// RejectedRecord tracks a bundle that was rejected or failed, so the
// cleanup job can later purge its files and rows once deletion is
// confirmed by the external feed.
type RejectedRecord struct {
	BaseFileName    string     `json:"base_file_name"`
	CreatedAt       time.Time  `json:"created_at"`
	Type            UnitType   `json:"type"`
	CompanyNumber   string     `json:"company_number"`
	External        bool       `json:"external"`
	NeedToBeDeleted bool       `json:"need_to_be_deleted"`
	DeletedSince    *time.Time `json:"deleted_since,omitempty"`
}

// Key returns the value-equality identity used for duplicate suppression of
// rejected records: base name plus company. Store-assigned ids are not part
// of the identity.
func (r *RejectedRecord) Key() string {
	return r.BaseFileName + ":" + r.CompanyNumber
}

// TransactionStatus is the lifecycle status of a stored transaction or bag
// in the transactional store.
type TransactionStatus string

const (
	StatusAccepted TransactionStatus = "ACCEPTED"
	StatusFailed   TransactionStatus = "FAILED"
)

// StoredTransaction is the persisted form of an accepted (or failed
// second-stage) unit in the transactional store.
type StoredTransaction struct {
	Number        string            `json:"number"` // natural key: transaction number, or label number for bags
	BaseFileName  string            `json:"base_file_name"`
	Type          UnitType          `json:"type"`
	CompanyNumber string            `json:"company_number"`
	StoreID       string            `json:"store_id"`
	MachineSerial string            `json:"machine_serial"`
	LabelNumber   string            `json:"label_number,omitempty"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	Record        *ParsedRecord     `json:"record,omitempty"`
}
