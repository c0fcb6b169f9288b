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
)

// FormatVersion identifies a revision of the positional RVM file format.
// Versions are ordered; newer versions only ever add fields.
type FormatVersion string

const (
	V15  FormatVersion = "15"
	V16  FormatVersion = "16"
	V162 FormatVersion = "16.2"
	V17  FormatVersion = "17"
)

// versionRank orders the known format versions. Unknown versions rank below
// every known one so they fail version gates closed.
var versionRank = map[FormatVersion]int{
	V15:  1,
	V16:  2,
	V162: 3,
	V17:  4,
}

// Known reports whether v is one of the supported format versions.
func (v FormatVersion) Known() bool {
	_, ok := versionRank[v]
	return ok
}

// AtLeast reports whether v is the same as or newer than other.
func (v FormatVersion) AtLeast(other FormatVersion) bool {
	return versionRank[v] >= versionRank[other]
}

// ParseVersion maps a raw version token to a FormatVersion.
func ParseVersion(raw string) (FormatVersion, error) {
	v := FormatVersion(raw)
	if !v.Known() {
		return "", fmt.Errorf("unknown format version %q", raw)
	}
	return v, nil
}

// TimestampLayout is the wire layout of header timestamps.
const TimestampLayout = "20060102150405"

// Header is the HDR line of a parsed file.
type Header struct {
	Version         FormatVersion `json:"version"`
	Timestamp       time.Time     `json:"timestamp"`
	StoreID         string        `json:"store_id"`
	MachineSerial   string        `json:"machine_serial"`
	SoftwareVersion string        `json:"software_version,omitempty"` // v16+
	LabelNumber     string        `json:"label_number,omitempty"`     // v16.2+
	BagType         string        `json:"bag_type,omitempty"`         // v16.2+
	CharityNumber   string        `json:"charity_number,omitempty"`   // v17+
}

// BodyLine is one POS line: a single scanned container. The flag fields
// keep their raw wire tokens; anything other than "0"/"1" is a business
// finding, not a structural error, so the codec must not collapse them.
type BodyLine struct {
	ArticleNumber string `json:"article_number"`
	ScannedWeight int    `json:"scanned_weight"`
	MaterialCode  int    `json:"material_code"`
	RefundedFlag  string `json:"refunded_flag"`
	CollectedFlag string `json:"collected_flag"`
	ManualFlag    string `json:"manual_flag"`
}

// Refunded reports the refunded flag; false for any non-"1" token.
func (b *BodyLine) Refunded() bool { return b.RefundedFlag == "1" }

// Collected reports the collected flag; false for any non-"1" token.
func (b *BodyLine) Collected() bool { return b.CollectedFlag == "1" }

// ManuallyHandled reports the manual-handling flag.
func (b *BodyLine) ManuallyHandled() bool { return b.ManualFlag == "1" }

// Footer is the SUM line carrying the declared totals that must reconcile
// against the body.
type Footer struct {
	TotalCount           int  `json:"total_count"`
	RefundedCount        int  `json:"refunded_count"`
	CollectedCount       int  `json:"collected_count"`
	ManuallyHandledCount int  `json:"manually_handled_count"`
	RejectedAmount       *int `json:"rejected_amount,omitempty"` // v16+
}

// ParsedRecord is one fully parsed transaction or bag file.
type ParsedRecord struct {
	Header Header     `json:"header"`
	Body   []BodyLine `json:"body"`
	Footer Footer     `json:"footer"`
}

// Finding is a single validation result tied to a line of the source file.
// Line 0 refers to the header, the footer uses the line after the last body
// line.
type Finding struct {
	Line    int    `json:"lineNumber"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("line %d: %s", f.Line, f.Message)
}
