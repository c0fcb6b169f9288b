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

import (
	"time"
)

// CompanyType distinguishes ordinary RVM owners from charity organizations
// referenced by v17 charity numbers.
type CompanyType string

const (
	CompanyRvmOwner CompanyType = "RVM_OWNER"
	CompanyCharity  CompanyType = "CHARITY"
)

// CompanyProfile is the read-only view of a machine owner consumed by the
// pipeline. Mutations happen elsewhere; the importer only reads.
type CompanyProfile struct {
	Number         string        `json:"number"`
	Name           string        `json:"name"`
	Type           CompanyType   `json:"type"`
	IPAddress      string        `json:"ip_address"`
	StoreID        string        `json:"store_id"`
	MachineSerials []string      `json:"machine_serials"`
	Version        FormatVersion `json:"version"`
	Channel        Channel       `json:"channel"`

	// IPTrunking relaxes the store-id header check: machines behind a
	// trunked connection report the trunk's store id, not the company's.
	IPTrunking bool `json:"ip_trunking"`

	// AllowDataYoungerThanDays is the dedup window: header dates older
	// than this (or in the future) are rejected, and files older than
	// this are eligible for cleanup.
	AllowDataYoungerThanDays int `json:"allow_data_younger_than_days"`

	// NotifyAboutDoubleTransactions routes duplicates to the rejected
	// location (operator alert) instead of the silent already-exists
	// location.
	NotifyAboutDoubleTransactions bool `json:"notify_about_double_transactions"`

	NotificationEmails []string `json:"notification_emails,omitempty"`
}

// HasMachineSerial reports whether serial belongs to this company.
func (c *CompanyProfile) HasMachineSerial(serial string) bool {
	for _, s := range c.MachineSerials {
		if s == serial {
			return true
		}
	}
	return false
}

// DedupWindow returns the company's duplicate-suppression window, falling
// back to def when unconfigured.
func (c *CompanyProfile) DedupWindow(def int) time.Duration {
	days := c.AllowDataYoungerThanDays
	if days <= 0 {
		days = def
	}
	return time.Duration(days) * 24 * time.Hour
}

// Article is a catalog entry for a deposit container.
type Article struct {
	Number         string    `json:"number"`
	Weight         int       `json:"weight"`
	Volume         int       `json:"volume"`
	MaterialCode   int       `json:"material_code"`
	ActivationDate time.Time `json:"activation_date"`
}

// ImporterRule remaps an EAN reported by a specific machine to the catalog
// EAN it actually refers to. Scoped by owner and serial.
type ImporterRule struct {
	RvmOwnerNumber string `json:"rvm_owner_number"`
	MachineSerial  string `json:"machine_serial"`
	FromEan        string `json:"from_ean"`
	ToEan          string `json:"to_ean"`
}

// LabelOrderRange is a customer-scoped allocation of bag label numbers.
// A label is valid only while its range is not exhausted.
type LabelOrderRange struct {
	CustomerNumber      string `json:"customer_number"`
	RvmOwnerNumber      string `json:"rvm_owner_number,omitempty"`
	FirstLabelNumber    int64  `json:"first_label_number"`
	LastLabelNumber     int64  `json:"last_label_number"`
	MarkAllLabelsAsUsed bool   `json:"mark_all_labels_as_used"`
}

// Contains reports whether label falls inside the range and the range is
// still usable.
func (r *LabelOrderRange) Contains(label int64) bool {
	if r.MarkAllLabelsAsUsed {
		return false
	}
	return label >= r.FirstLabelNumber && label <= r.LastLabelNumber
}
