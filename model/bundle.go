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
	"path/filepath"
	"strings"
)

// UnitType distinguishes the two kinds of work units moving through the
// pipeline.
type UnitType string

const (
	UnitTransaction UnitType = "TRANSACTION"
	UnitBag         UnitType = "BAG"
)

// Channel identifies how a company delivers its files.
type Channel string

const (
	ChannelAA   Channel = "AA"   // multi-file bag bundles dropped per company
	ChannelSftp Channel = "SFTP" // single payload + checksum sidecar
	ChannelRest Channel = "REST" // wire transactions via the create endpoint
)

// Outcome is the terminal state of one pipeline run for a bundle.
type Outcome string

const (
	OutcomeAccepted      Outcome = "ACCEPTED"
	OutcomeRejected      Outcome = "REJECTED"
	OutcomeAlreadyExists Outcome = "ALREADY_EXISTS"
	OutcomeFailed        Outcome = "FAILED"
)

const (
	// HashExt is the checksum sidecar extension.
	HashExt = ".hash"
	// ErrorExt is the structured error sidecar extension.
	ErrorExt = ".error"

	// TransactionBaseNameLength is the fixed base-name length of
	// transaction payload files. Bag base names are variable.
	TransactionBaseNameLength = 22
)

// AAExtensions lists the companion payload extensions of a multi-file bag
// bundle, in the order they are verified.
var AAExtensions = []string{".ready", ".batch", ".sls", ".nls"}

// FileBundle is one unit of work on disk: a payload file (or the four AA
// companions) plus checksum sidecars. A bundle is only eligible for parsing
// once every required sidecar exists and validates.
type FileBundle struct {
	BaseName string   `json:"base_name"`
	Type     UnitType `json:"type"`
	Channel  Channel  `json:"channel"`
	Dir      string   `json:"dir"`

	// Payloads holds the payload file names relative to Dir. One entry for
	// single-file channels, four for AA bundles.
	Payloads []string `json:"payloads"`
}

// PrimaryPayload returns the payload whose content is parsed. For AA
// bundles this is the .ready file.
func (b *FileBundle) PrimaryPayload() string {
	if len(b.Payloads) == 0 {
		return ""
	}
	return b.Payloads[0]
}

// AllFiles returns every file belonging to the bundle relative to Dir:
// payloads, checksum sidecars and, if present on disk, the error sidecar.
// The error sidecar is listed last and callers must tolerate its absence.
func (b *FileBundle) AllFiles() []string {
	files := make([]string, 0, len(b.Payloads)*2+1)
	for _, p := range b.Payloads {
		files = append(files, p, p+HashExt)
	}
	files = append(files, b.BaseName+ErrorExt)
	return files
}

// BaseNameFor derives the bundle base name from a payload file name.
// Transaction names carry a fixed-length identifier prefix; bag names are
// the file name without its extension.
func BaseNameFor(fileName string, t UnitType) string {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if t == UnitTransaction && len(name) > TransactionBaseNameLength {
		return name[:TransactionBaseNameLength]
	}
	return name
}

// ErrorSidecar is the JSON document written next to rejected and failed
// bundles.
type ErrorSidecar struct {
	Details        string    `json:"details"`
	ImportMessages []Finding `json:"importMessages"`
	Request        string    `json:"request,omitempty"`
}

// ImportMessage is the broker payload published for accepted units and job
// triggers. Payloads lists every payload of the bundle so the consumer
// moves multi-file bag bundles whole; FileName is the primary payload.
type ImportMessage struct {
	FileName  string   `json:"fileName"`
	CompanyID string   `json:"companyId"`
	Type      UnitType `json:"type"`
	Payloads  []string `json:"payloads,omitempty"`
}
