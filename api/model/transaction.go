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
	"fmt"
	"time"

	"github.com/nordvend/pant/model"
)

// CreateTransaction is the wire form of a REST-delivered transaction. The
// shape mirrors the positional file format: one header, the scanned lines
// and the declared totals.
type CreateTransaction struct {
	Number        string `json:"number" binding:"required"`
	CompanyNumber string `json:"company_number" binding:"required"`

	Version         string `json:"version" binding:"required"`
	Timestamp       string `json:"timestamp" binding:"required"`
	StoreID         string `json:"store_id" binding:"required"`
	MachineSerial   string `json:"machine_serial" binding:"required"`
	SoftwareVersion string `json:"software_version,omitempty"`
	LabelNumber     string `json:"label_number,omitempty"`
	BagType         string `json:"bag_type,omitempty"`
	CharityNumber   string `json:"charity_number,omitempty"`

	Lines   []CreateLine  `json:"lines" binding:"required,dive"`
	Summary CreateSummary `json:"summary" binding:"required"`
}

// CreateLine is one scanned container.
type CreateLine struct {
	ArticleNumber   string `json:"article_number" binding:"required"`
	ScannedWeight   int    `json:"scanned_weight"`
	MaterialCode    int    `json:"material_code"`
	Refunded        bool   `json:"refunded"`
	Collected       bool   `json:"collected"`
	ManuallyHandled bool   `json:"manually_handled"`
}

// CreateSummary carries the declared totals to reconcile against the lines.
type CreateSummary struct {
	TotalCount           int  `json:"total_count"`
	RefundedCount        int  `json:"refunded_count"`
	CollectedCount       int  `json:"collected_count"`
	ManuallyHandledCount int  `json:"manually_handled_count"`
	RejectedAmount       *int `json:"rejected_amount,omitempty"`
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ToRecord converts the wire form into the parsed record the pipeline
// validates. The version token and timestamp must be well formed; anything
// else is left to the rule engine.
func (c *CreateTransaction) ToRecord() (*model.ParsedRecord, error) {
	version, err := model.ParseVersion(c.Version)
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(model.TimestampLayout, c.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("timestamp %q is not in the %s layout", c.Timestamp, model.TimestampLayout)
	}

	rec := &model.ParsedRecord{
		Header: model.Header{
			Version:         version,
			Timestamp:       ts,
			StoreID:         c.StoreID,
			MachineSerial:   c.MachineSerial,
			SoftwareVersion: c.SoftwareVersion,
			LabelNumber:     c.LabelNumber,
			BagType:         c.BagType,
			CharityNumber:   c.CharityNumber,
		},
		Footer: model.Footer{
			TotalCount:           c.Summary.TotalCount,
			RefundedCount:        c.Summary.RefundedCount,
			CollectedCount:       c.Summary.CollectedCount,
			ManuallyHandledCount: c.Summary.ManuallyHandledCount,
			RejectedAmount:       c.Summary.RejectedAmount,
		},
	}
	for _, l := range c.Lines {
		rec.Body = append(rec.Body, model.BodyLine{
			ArticleNumber: l.ArticleNumber,
			ScannedWeight: l.ScannedWeight,
			MaterialCode:  l.MaterialCode,
			RefundedFlag:  flag(l.Refunded),
			CollectedFlag: flag(l.Collected),
			ManualFlag:    flag(l.ManuallyHandled),
		})
	}
	return rec, nil
}
