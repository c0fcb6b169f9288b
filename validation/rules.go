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

// Package validation is the business-rule engine of the import pipeline.
// Validate is a pure function of the company profile, the parsed record,
// the reference data and the configured retention default: it accumulates
// every finding across header, body and
// footer instead of stopping at the first, so a rejection reports all
// problems at once. Lookup failures are returned as errors, never as
// findings; the caller routes those to FAILED.
package validation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nordvend/pant/config"
	"github.com/nordvend/pant/model"
)

// MaxLabelLength is the longest accepted label number.
const MaxLabelLength = 17

// Valid material codes occupy a fixed range of the catalog numbering.
const (
	MaterialCodeMin = 1
	MaterialCodeMax = 49
)

// validBagTypes is the fixed allow-list of two-character bag type codes.
var validBagTypes = map[string]bool{
	"GL": true, // glass
	"PL": true, // plastic
	"ME": true, // metal
	"MX": true, // mixed
}

// ArticleCatalog resolves catalog entries by article number.
type ArticleCatalog interface {
	ArticleByNumber(ctx context.Context, number string) (*model.Article, error)
}

// ImporterRules returns the EAN remap rules scoped to an owner and machine
// serial.
type ImporterRules interface {
	RulesFor(ctx context.Context, ownerNumber, machineSerial string) ([]model.ImporterRule, error)
}

// LabelRanges answers whether a label falls within a non-exhausted
// label-order range for a customer.
type LabelRanges interface {
	ExistsWithinRange(ctx context.Context, customerNumber string, label int64) (bool, error)
}

// LabelUsage answers whether a label number has already been consumed by
// any dedup index or the transactional store.
type LabelUsage interface {
	LabelUsed(ctx context.Context, label string) (bool, error)
}

// CharityLookup answers whether a charity-type company exists.
type CharityLookup interface {
	CharityExists(ctx context.Context, number string) (bool, error)
}

// Engine evaluates the validation rules. It is stateless apart from its
// reference-data lookups and safe for concurrent use.
type Engine struct {
	articles  ArticleCatalog
	rules     ImporterRules
	ranges    LabelRanges
	labels    LabelUsage
	charities CharityLookup
	now       func() time.Time
}

// NewEngine wires a rule engine with its reference-data lookups.
func NewEngine(articles ArticleCatalog, rules ImporterRules, ranges LabelRanges, labels LabelUsage, charities CharityLookup) *Engine {
	return &Engine{
		articles:  articles,
		rules:     rules,
		ranges:    ranges,
		labels:    labels,
		charities: charities,
		now:       time.Now,
	}
}

// Validate runs every header, body and footer rule and returns the merged
// findings. Validation succeeds only if the returned slice is empty.
func (e *Engine) Validate(ctx context.Context, company *model.CompanyProfile, rec *model.ParsedRecord) ([]model.Finding, error) {
	var findings []model.Finding

	headerFindings, err := e.validateHeader(ctx, company, rec)
	if err != nil {
		return nil, err
	}
	findings = append(findings, headerFindings...)

	bodyFindings, err := e.validateBody(ctx, company, rec)
	if err != nil {
		return nil, err
	}
	findings = append(findings, bodyFindings...)

	findings = append(findings, validateFooter(rec)...)
	return findings, nil
}

func (e *Engine) validateHeader(ctx context.Context, company *model.CompanyProfile, rec *model.ParsedRecord) ([]model.Finding, error) {
	var findings []model.Finding
	h := rec.Header

	add := func(format string, args ...interface{}) {
		findings = append(findings, model.Finding{Line: 0, Message: fmt.Sprintf(format, args...)})
	}

	if h.StoreID == "" {
		add("Store id is missing")
	} else if !company.IPTrunking && h.StoreID != company.StoreID {
		add("Store id %s does not match configured store id %s", h.StoreID, company.StoreID)
	}

	if h.MachineSerial == "" {
		add("Machine serial is missing")
	} else if !company.HasMachineSerial(h.MachineSerial) {
		add("Machine serial %s is not known for company %s", h.MachineSerial, company.Number)
	}

	if h.LabelNumber != "" {
		labelFindings, err := e.validateLabel(ctx, company, h.LabelNumber)
		if err != nil {
			return nil, err
		}
		findings = append(findings, labelFindings...)
	}

	if h.BagType != "" {
		if len(h.BagType) != 2 || !validBagTypes[h.BagType] {
			add("Bag type %s is not valid", h.BagType)
		}
	}

	if h.CharityNumber != "" {
		exists, err := e.charities.CharityExists(ctx, h.CharityNumber)
		if err != nil {
			return nil, err
		}
		if !exists {
			add("Charity company %s does not exist", h.CharityNumber)
		}
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	window := company.DedupWindow(cfg.Pipeline.RetentionDays)
	now := e.now()
	if window > 0 && h.Timestamp.Before(now.Add(-window)) {
		add("Date %s is older than %d days", h.Timestamp.Format(model.TimestampLayout), int(window.Hours()/24))
	}
	if h.Timestamp.After(now) {
		add("Date %s is in the future", h.Timestamp.Format(model.TimestampLayout))
	}

	return findings, nil
}

func (e *Engine) validateLabel(ctx context.Context, company *model.CompanyProfile, label string) ([]model.Finding, error) {
	var findings []model.Finding

	add := func(format string, args ...interface{}) {
		findings = append(findings, model.Finding{Line: 0, Message: fmt.Sprintf(format, args...)})
	}

	if len(label) > MaxLabelLength {
		add("Number (label) is longer than %d characters: %s", MaxLabelLength, label)
		return findings, nil
	}
	num, err := strconv.ParseInt(label, 10, 64)
	if err != nil {
		add("Number (label) is not numeric: %s", label)
		return findings, nil
	}

	used, err := e.labels.LabelUsed(ctx, label)
	if err != nil {
		return nil, err
	}
	if used {
		add("Number (label) %s is already used", label)
	}

	inRange, err := e.ranges.ExistsWithinRange(ctx, company.Number, num)
	if err != nil {
		return nil, err
	}
	if !inRange {
		add("Number (label) %s is not within an available label order range for customer %s", label, company.Number)
	}

	return findings, nil
}

func (e *Engine) validateBody(ctx context.Context, company *model.CompanyProfile, rec *model.ParsedRecord) ([]model.Finding, error) {
	rules, err := e.rules.RulesFor(ctx, company.Number, rec.Header.MachineSerial)
	if err != nil {
		return nil, err
	}

	var findings []model.Finding
	for i := range rec.Body {
		line := i + 1
		lineFindings, err := e.validateBodyLine(ctx, &rec.Body[i], rec.Header.Timestamp, rules, line)
		if err != nil {
			return nil, err
		}
		findings = append(findings, lineFindings...)
	}
	return findings, nil
}

func (e *Engine) validateBodyLine(ctx context.Context, b *model.BodyLine, headerDate time.Time, rules []model.ImporterRule, line int) ([]model.Finding, error) {
	var findings []model.Finding

	add := func(format string, args ...interface{}) {
		findings = append(findings, model.Finding{Line: line, Message: fmt.Sprintf(format, args...)})
	}

	checkFlag := func(name, flag string) {
		if flag != "0" && flag != "1" {
			add("%s flag must be 0 or 1, got %s", name, flag)
		}
	}
	checkFlag("Refunded", b.RefundedFlag)
	checkFlag("Collected", b.CollectedFlag)
	checkFlag("Manually handled", b.ManualFlag)

	// Remap before catalog lookup: importer rules take precedence over the
	// EAN the machine reported.
	ean := remapEan(rules, b.ArticleNumber)

	article, err := e.articles.ArticleByNumber(ctx, ean)
	if err != nil {
		return nil, err
	}

	if article == nil {
		// Unknown EANs are only a problem when the machine refunded the
		// container. Intentional policy, keep the conditional as is.
		if b.Refunded() {
			add("EAN %s is unknown", ean)
		}
	} else {
		min := article.Weight
		max := article.Weight + article.Volume/10
		if b.ScannedWeight < min || (article.Volume > 0 && b.ScannedWeight > max) {
			add("Scanned weight %d for EAN %s is outside the allowed range [%d, %d]", b.ScannedWeight, ean, min, max)
		}

		if b.MaterialCode < MaterialCodeMin || b.MaterialCode > MaterialCodeMax {
			add("Material code %d is out of range", b.MaterialCode)
		} else if article.MaterialCode != 0 && b.MaterialCode != article.MaterialCode {
			add("Material code %d does not match catalog material %d for EAN %s", b.MaterialCode, article.MaterialCode, ean)
		}

		if !article.ActivationDate.IsZero() && article.ActivationDate.After(headerDate) {
			add("EAN %s is not active until %s", ean, article.ActivationDate.Format("2006-01-02"))
		}
	}

	if b.Refunded() && !b.Collected() {
		add("Refunded article %s was not collected", ean)
	}

	return findings, nil
}

func remapEan(rules []model.ImporterRule, ean string) string {
	for _, r := range rules {
		if r.FromEan == ean {
			return r.ToEan
		}
	}
	return ean
}

// validateFooter reconciles the declared totals against the body. Needs no
// reference data.
func validateFooter(rec *model.ParsedRecord) []model.Finding {
	var findings []model.Finding
	line := len(rec.Body) + 1

	add := func(format string, args ...interface{}) {
		findings = append(findings, model.Finding{Line: line, Message: fmt.Sprintf(format, args...)})
	}

	var refunded, collected, manual int
	for i := range rec.Body {
		if rec.Body[i].Refunded() {
			refunded++
		}
		if rec.Body[i].Collected() {
			collected++
		}
		if rec.Body[i].ManuallyHandled() {
			manual++
		}
	}

	f := rec.Footer
	if f.TotalCount != len(rec.Body) {
		add("Total read amount is %d, does not equal total amount field value: %d", len(rec.Body), f.TotalCount)
	}
	if f.RefundedCount != refunded {
		add("Refunded read amount is %d, does not equal refunded amount field value: %d", refunded, f.RefundedCount)
	}
	if f.CollectedCount != collected {
		add("Collected read amount is %d, does not equal collected amount field value: %d", collected, f.CollectedCount)
	}
	if f.ManuallyHandledCount != manual {
		add("Manually handled read amount is %d, does not equal manually handled amount field value: %d", manual, f.ManuallyHandledCount)
	}
	if f.RejectedAmount != nil {
		if *f.RejectedAmount < 0 {
			add("Rejected amount is negative: %d", *f.RejectedAmount)
		} else if *f.RejectedAmount < f.ManuallyHandledCount {
			add("Rejected amount %d is less than manually handled amount %d", *f.RejectedAmount, f.ManuallyHandledCount)
		}
	}

	return findings
}
