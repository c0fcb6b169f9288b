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

// Package codec parses and serializes the positional RVM file format. A
// file is one HDR line, zero or more POS lines and exactly one SUM line,
// with the field set of each line kind gated by the declared format
// version. Parsing fails closed: a line with fewer tokens than its version
// requires is a structural error, never a line with defaults filled in.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nordvend/pant/model"
)

// Delimiter separates tokens within a line.
const Delimiter = ";"

// Line tags.
const (
	TagHeader = "HDR"
	TagBody   = "POS"
	TagFooter = "SUM"
)

// StructuralError marks an expected parse rejection: a malformed or short
// record. Anything else raised during parsing (unreadable input,
// unparseable numeric token inside a structurally complete line) is an
// unexpected failure and surfaces as a plain error.
type StructuralError struct {
	Line   int
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error on line %d: %s", e.Line, e.Reason)
}

// IsStructural reports whether err is (or wraps) a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// fieldThreshold is one row of the version gate: from Version on, a line
// kind must carry at least Fields tokens (tag included). Rows are ordered
// oldest first; the last row at or below the declared version wins.
type fieldThreshold struct {
	Version model.FormatVersion
	Fields  int
}

var (
	headerThresholds = []fieldThreshold{
		{model.V15, 5},  // HDR;version;timestamp;storeId;serial
		{model.V16, 6},  // + software version
		{model.V162, 8}, // + label number, bag type
		{model.V17, 9},  // + charity number
	}
	bodyThresholds = []fieldThreshold{
		{model.V15, 7}, // POS;ean;weight;material;refunded;collected;manual
	}
	footerThresholds = []fieldThreshold{
		{model.V15, 5}, // SUM;total;refunded;collected;manual
		{model.V16, 6}, // + rejected amount
	}
)

// requiredFields resolves the field count for a version against an ordered
// threshold table.
func requiredFields(table []fieldThreshold, v model.FormatVersion) int {
	n := table[0].Fields
	for _, t := range table {
		if v.AtLeast(t.Version) {
			n = t.Fields
		}
	}
	return n
}

// Parse reads one complete file from r. The version is taken from the HDR
// line and gates the field count of every subsequent line.
func Parse(r io.Reader) (*model.ParsedRecord, error) {
	scanner := bufio.NewScanner(r)

	rec := &model.ParsedRecord{}
	var (
		sawHeader bool
		sawFooter bool
		lineNo    int
	)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			lineNo++
			continue
		}

		tokens := strings.Split(line, Delimiter)
		tag := tokens[0]

		switch tag {
		case TagHeader:
			if sawHeader {
				return nil, &StructuralError{Line: lineNo, Reason: "duplicate HDR line"}
			}
			h, err := parseHeader(tokens, lineNo)
			if err != nil {
				return nil, err
			}
			rec.Header = *h
			sawHeader = true
		case TagBody:
			if !sawHeader {
				return nil, &StructuralError{Line: lineNo, Reason: "POS line before HDR"}
			}
			if sawFooter {
				return nil, &StructuralError{Line: lineNo, Reason: "POS line after SUM"}
			}
			b, err := parseBody(tokens, rec.Header.Version, lineNo)
			if err != nil {
				return nil, err
			}
			rec.Body = append(rec.Body, *b)
		case TagFooter:
			if !sawHeader {
				return nil, &StructuralError{Line: lineNo, Reason: "SUM line before HDR"}
			}
			if sawFooter {
				return nil, &StructuralError{Line: lineNo, Reason: "duplicate SUM line"}
			}
			f, err := parseFooter(tokens, rec.Header.Version, lineNo)
			if err != nil {
				return nil, err
			}
			rec.Footer = *f
			sawFooter = true
		default:
			return nil, &StructuralError{Line: lineNo, Reason: fmt.Sprintf("unknown line tag %q", tag)}
		}
		lineNo++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading record")
	}

	if !sawHeader {
		return nil, &StructuralError{Line: 0, Reason: "missing HDR line"}
	}
	if !sawFooter {
		return nil, &StructuralError{Line: lineNo, Reason: "missing SUM line"}
	}
	return rec, nil
}

func parseHeader(tokens []string, line int) (*model.Header, error) {
	if len(tokens) < 2 {
		return nil, &StructuralError{Line: line, Reason: "HDR line carries no version"}
	}
	version, err := model.ParseVersion(tokens[1])
	if err != nil {
		return nil, &StructuralError{Line: line, Reason: err.Error()}
	}

	want := requiredFields(headerThresholds, version)
	if len(tokens) < want {
		return nil, &StructuralError{
			Line:   line,
			Reason: fmt.Sprintf("HDR for version %s requires %d fields, got %d", version, want, len(tokens)),
		}
	}

	ts, err := parseTimestamp(tokens[2])
	if err != nil {
		return nil, errors.Wrapf(err, "HDR timestamp %q", tokens[2])
	}

	h := &model.Header{
		Version:       version,
		Timestamp:     ts,
		StoreID:       tokens[3],
		MachineSerial: tokens[4],
	}
	if version.AtLeast(model.V16) {
		h.SoftwareVersion = tokens[5]
	}
	if version.AtLeast(model.V162) {
		h.LabelNumber = tokens[6]
		h.BagType = tokens[7]
	}
	if version.AtLeast(model.V17) {
		h.CharityNumber = tokens[8]
	}
	return h, nil
}

func parseBody(tokens []string, v model.FormatVersion, line int) (*model.BodyLine, error) {
	want := requiredFields(bodyThresholds, v)
	if len(tokens) < want {
		return nil, &StructuralError{
			Line:   line,
			Reason: fmt.Sprintf("POS requires %d fields, got %d", want, len(tokens)),
		}
	}

	weight, err := strconv.Atoi(tokens[2])
	if err != nil {
		return nil, errors.Wrapf(err, "POS weight %q on line %d", tokens[2], line)
	}
	material, err := strconv.Atoi(tokens[3])
	if err != nil {
		return nil, errors.Wrapf(err, "POS material code %q on line %d", tokens[3], line)
	}

	// Flag tokens pass through untouched so the rule engine can report
	// non-boolean values as findings instead of structural errors.
	return &model.BodyLine{
		ArticleNumber: tokens[1],
		ScannedWeight: weight,
		MaterialCode:  material,
		RefundedFlag:  tokens[4],
		CollectedFlag: tokens[5],
		ManualFlag:    tokens[6],
	}, nil
}

func parseFooter(tokens []string, v model.FormatVersion, line int) (*model.Footer, error) {
	want := requiredFields(footerThresholds, v)
	if len(tokens) < want {
		return nil, &StructuralError{
			Line:   line,
			Reason: fmt.Sprintf("SUM for version %s requires %d fields, got %d", v, want, len(tokens)),
		}
	}

	counts := make([]int, 4)
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(tokens[i+1])
		if err != nil {
			return nil, errors.Wrapf(err, "SUM field %d %q on line %d", i+1, tokens[i+1], line)
		}
		counts[i] = n
	}

	f := &model.Footer{
		TotalCount:           counts[0],
		RefundedCount:        counts[1],
		CollectedCount:       counts[2],
		ManuallyHandledCount: counts[3],
	}
	if v.AtLeast(model.V16) {
		rejected, err := strconv.Atoi(tokens[5])
		if err != nil {
			return nil, errors.Wrapf(err, "SUM rejected amount %q on line %d", tokens[5], line)
		}
		f.RejectedAmount = &rejected
	}
	return f, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	return time.Parse(model.TimestampLayout, raw)
}

// Write serializes rec to w with the same version gating as Parse: one HDR
// line, rec's POS lines and exactly one SUM line.
func Write(w io.Writer, rec *model.ParsedRecord) error {
	v := rec.Header.Version
	if !v.Known() {
		return fmt.Errorf("cannot serialize unknown format version %q", v)
	}

	bw := bufio.NewWriter(w)

	header := []string{
		TagHeader,
		string(v),
		rec.Header.Timestamp.Format(model.TimestampLayout),
		rec.Header.StoreID,
		rec.Header.MachineSerial,
	}
	if v.AtLeast(model.V16) {
		header = append(header, rec.Header.SoftwareVersion)
	}
	if v.AtLeast(model.V162) {
		header = append(header, rec.Header.LabelNumber, rec.Header.BagType)
	}
	if v.AtLeast(model.V17) {
		header = append(header, rec.Header.CharityNumber)
	}
	if err := writeLine(bw, header); err != nil {
		return err
	}

	for _, b := range rec.Body {
		pos := []string{
			TagBody,
			b.ArticleNumber,
			strconv.Itoa(b.ScannedWeight),
			strconv.Itoa(b.MaterialCode),
			flag(b.Refunded()),
			flag(b.Collected()),
			flag(b.ManuallyHandled()),
		}
		if err := writeLine(bw, pos); err != nil {
			return err
		}
	}

	footer := []string{
		TagFooter,
		strconv.Itoa(rec.Footer.TotalCount),
		strconv.Itoa(rec.Footer.RefundedCount),
		strconv.Itoa(rec.Footer.CollectedCount),
		strconv.Itoa(rec.Footer.ManuallyHandledCount),
	}
	if v.AtLeast(model.V16) {
		rejected := 0
		if rec.Footer.RejectedAmount != nil {
			rejected = *rec.Footer.RejectedAmount
		}
		footer = append(footer, strconv.Itoa(rejected))
	}
	if err := writeLine(bw, footer); err != nil {
		return err
	}

	return bw.Flush()
}

func writeLine(w *bufio.Writer, tokens []string) error {
	if _, err := w.WriteString(strings.Join(tokens, Delimiter)); err != nil {
		return err
	}
	_, err := w.WriteString("\n")
	return err
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ExportFileName builds the {KIND}_{VERSION}.csv naming convention used for
// export artifacts. The matching checksum sidecar appends model.HashExt.
func ExportFileName(kind string, v model.FormatVersion) string {
	return fmt.Sprintf("%s_%s.csv", strings.ToUpper(kind), v)
}
