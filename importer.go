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

package pant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nordvend/pant/codec"
	"github.com/nordvend/pant/config"
	"github.com/nordvend/pant/integrity"
	"github.com/nordvend/pant/internal/files"
	"github.com/nordvend/pant/internal/notification"
	"github.com/nordvend/pant/model"
)

// ImportBundle drives one bundle through the pipeline and returns its
// terminal outcome. The stages run strictly in order: checksum gate,
// parse, duplicate checks, business validation, acceptance. Files change
// hands only by rename, so a bundle is owned by exactly one stage
// directory at any time; re-running an already routed bundle is a no-op
// at the duplicate stage.
//
// The returned error is non-nil only for OutcomeFailed, carrying the
// transient cause. Rejections and duplicates are terminal by design and
// report no error.
func (p *Pant) ImportBundle(ctx context.Context, company *model.CompanyProfile, b *model.FileBundle) (model.Outcome, error) {
	if company == nil {
		return model.OutcomeFailed, fmt.Errorf("bundle %s has no owning company", b.BaseName)
	}

	// Integrity gate. Nothing is parsed before every payload matches its
	// checksum sidecar.
	if err := integrity.VerifyBundle(b); err != nil {
		if integrity.IsIntegrity(err) {
			return p.reject(ctx, company, b, err.Error(), []model.Finding{{Line: 0, Message: err.Error()}}), nil
		}
		return p.fail(ctx, company, b, err)
	}

	rec, err := p.parseBundle(b)
	if err != nil {
		if codec.IsStructural(err) {
			return p.reject(ctx, company, b, err.Error(), []model.Finding{{Line: 0, Message: err.Error()}}), nil
		}
		return p.fail(ctx, company, b, err)
	}

	key := unitKey(b, rec)
	duplicate, err := p.isDuplicateUnit(ctx, b, key)
	if err != nil {
		return p.fail(ctx, company, b, err)
	}
	if duplicate {
		return p.routeDuplicate(ctx, company, b), nil
	}

	findings, err := p.engine.Validate(ctx, company, rec)
	if err != nil {
		return p.fail(ctx, company, b, err)
	}
	if len(findings) > 0 {
		return p.reject(ctx, company, b, "validation failed", findings), nil
	}

	if err := p.accept(ctx, company, b, rec, key); err != nil {
		return p.fail(ctx, company, b, err)
	}
	return model.OutcomeAccepted, nil
}

func (p *Pant) parseBundle(b *model.FileBundle) (*model.ParsedRecord, error) {
	f, err := os.Open(filepath.Join(b.Dir, b.PrimaryPayload()))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return codec.Parse(f)
}

// unitKey is the natural duplicate-suppression key: the transaction number
// (the fixed-length base name) for transactions, the bag label for bags.
func unitKey(b *model.FileBundle, rec *model.ParsedRecord) string {
	if b.Type == model.UnitBag && rec.Header.LabelNumber != "" {
		return rec.Header.LabelNumber
	}
	return b.BaseName
}

// isDuplicateUnit runs the duplicate checks in priority order: a same-name
// file already routed to the accepted directory, then the two-tier index,
// then the transactional store's natural key.
func (p *Pant) isDuplicateUnit(ctx context.Context, b *model.FileBundle, key string) (bool, error) {
	matches, err := files.FindMatching(p.layout.Accepted(b.Type), b.BaseName)
	if err != nil {
		return false, err
	}
	if len(matches) > 0 {
		return true, nil
	}
	dup, err := p.dedup.IsDuplicate(ctx, b.Type, key)
	if err != nil {
		return false, err
	}
	if dup {
		return true, nil
	}
	return p.datasource.TransactionExistsByNumber(ctx, key)
}

// routeDuplicate sends a duplicate to the rejected location when the
// company wants to hear about doubles, otherwise to the silent
// already-exists location. Neither path produces a validation finding.
func (p *Pant) routeDuplicate(ctx context.Context, company *model.CompanyProfile, b *model.FileBundle) model.Outcome {
	logrus.Infof("duplicate unit %s from company %s", b.BaseName, company.Number)
	if company.NotifyAboutDoubleTransactions {
		return p.reject(ctx, company, b, "duplicate unit", nil)
	}
	dest := p.layout.AlreadyExists(b.Type)
	if err := files.MoveBundle(b, dest); err != nil {
		logrus.Errorf("moving duplicate %s: %v", b.BaseName, err)
		notification.NotifyError(err)
	}
	p.writeSidecar(dest, b.BaseName, "duplicate unit", nil)
	return model.OutcomeAlreadyExists
}

// accept renames the payloads with the owning company's number, moves the
// bundle to the accepted directory, regenerates checksum sidecars for the
// renamed payloads, persists the record, marks the unit in the duplicate
// index and publishes the bundle for second-stage processing.
func (p *Pant) accept(ctx context.Context, company *model.CompanyProfile, b *model.FileBundle, rec *model.ParsedRecord, key string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	suffix := "_" + company.Number
	if err := files.RenameBundle(b, func(name string) string {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		if strings.HasSuffix(base, suffix) {
			return name
		}
		return base + suffix + ext
	}); err != nil {
		return err
	}
	if err := files.MoveBundle(b, p.layout.Accepted(b.Type)); err != nil {
		return err
	}
	for _, payload := range b.Payloads {
		if err := integrity.WriteChecksum(filepath.Join(b.Dir, payload)); err != nil {
			return err
		}
	}

	if err := p.datasource.RecordTransaction(ctx, &model.StoredTransaction{
		Number:        key,
		BaseFileName:  b.BaseName,
		Type:          b.Type,
		CompanyNumber: company.Number,
		StoreID:       rec.Header.StoreID,
		MachineSerial: rec.Header.MachineSerial,
		LabelNumber:   rec.Header.LabelNumber,
		Status:        model.StatusAccepted,
		CreatedAt:     time.Now(),
		Record:        rec,
	}); err != nil {
		return err
	}
	if err := p.dedup.Record(ctx, b.Type, key, company.DedupWindow(cfg.Pipeline.RetentionDays)); err != nil {
		return err
	}

	if p.queue == nil {
		return nil
	}
	if err := p.queue.Dispatch(ctx, b, company); err != nil {
		// The unit is safely in the accepted directory; the staging
		// scanner's accepted-duplicate check keeps a later retry from
		// importing it twice. Publishing is retried by the broker.
		logrus.Errorf("dispatching %s: %v", b.BaseName, err)
		notification.NotifyError(err)
	}
	return nil
}

// reject routes a bundle to the company's rejected directory, writes the
// error sidecar, records the rejection and notifies the company.
func (p *Pant) reject(ctx context.Context, company *model.CompanyProfile, b *model.FileBundle, details string, findings []model.Finding) model.Outcome {
	dest := p.layout.Rejected(b.Type, company.Number)
	if err := files.MoveBundle(b, dest); err != nil {
		logrus.Errorf("moving rejected %s: %v", b.BaseName, err)
		notification.NotifyError(err)
	}
	p.writeSidecar(dest, b.BaseName, details, findings)

	if err := p.datasource.CreateRejectedRecord(ctx, &model.RejectedRecord{
		BaseFileName:  b.BaseName,
		CreatedAt:     time.Now(),
		Type:          b.Type,
		CompanyNumber: company.Number,
	}); err != nil {
		logrus.Errorf("recording rejection of %s: %v", b.BaseName, err)
		notification.NotifyError(err)
	}

	if cfg, err := config.Fetch(); err == nil && cfg.Pipeline.MoveFailedToCompanyRejectedDirectory && company.IPAddress != "" {
		if err := files.CopyBundle(b, p.layout.CompanyRejected(company.IPAddress)); err != nil {
			logrus.Errorf("mirroring rejected %s: %v", b.BaseName, err)
		}
	}

	if len(company.NotificationEmails) > 0 {
		subject := fmt.Sprintf("Import rejected: %s", b.BaseName)
		if err := p.mailer.Send(subject, b.PrimaryPayload(), findings, company.NotificationEmails); err != nil {
			logrus.Errorf("mailing rejection of %s: %v", b.BaseName, err)
		}
	}
	return model.OutcomeRejected
}

// fail routes a bundle to the failed directory keyed by the company's IP.
// Failures are transient; the failed-reimport job restages them, so no
// rejected record is written.
func (p *Pant) fail(ctx context.Context, company *model.CompanyProfile, b *model.FileBundle, cause error) (model.Outcome, error) {
	logrus.Errorf("import of %s failed: %v", b.BaseName, cause)
	notification.NotifyError(cause)

	dest := p.layout.Failed(b.Type, company.IPAddress)
	if err := files.MoveBundle(b, dest); err != nil {
		logrus.Errorf("moving failed %s: %v", b.BaseName, err)
		return model.OutcomeFailed, cause
	}
	p.writeSidecar(dest, b.BaseName, cause.Error(), nil)
	return model.OutcomeFailed, cause
}

func (p *Pant) writeSidecar(dir, baseName, details string, findings []model.Finding) {
	if err := integrity.WriteErrorSidecar(dir, baseName, model.ErrorSidecar{
		Details:        details,
		ImportMessages: findings,
	}); err != nil {
		logrus.Errorf("writing error sidecar for %s: %v", baseName, err)
	}
}

// IngestWireTransaction imports a transaction delivered over the REST
// channel. No files are involved: the record arrives parsed, so only the
// duplicate checks, the rule engine and persistence run. Findings are
// returned to the caller instead of an error sidecar.
func (p *Pant) IngestWireTransaction(ctx context.Context, companyNumber, number string, rec *model.ParsedRecord) (model.Outcome, []model.Finding, error) {
	company, err := p.datasource.CompanyByNumber(ctx, companyNumber)
	if err != nil {
		return model.OutcomeFailed, nil, err
	}
	if company == nil {
		return model.OutcomeFailed, nil, fmt.Errorf("unknown company %s", companyNumber)
	}

	cfg, err := config.Fetch()
	if err != nil {
		return model.OutcomeFailed, nil, err
	}

	dup, err := p.dedup.IsDuplicate(ctx, model.UnitTransaction, number)
	if err != nil {
		return model.OutcomeFailed, nil, err
	}
	if !dup {
		dup, err = p.datasource.TransactionExistsByNumber(ctx, number)
		if err != nil {
			return model.OutcomeFailed, nil, err
		}
	}
	if dup {
		logrus.Infof("duplicate wire transaction %s from company %s", number, companyNumber)
		return model.OutcomeAlreadyExists, nil, nil
	}

	findings, err := p.engine.Validate(ctx, company, rec)
	if err != nil {
		return model.OutcomeFailed, nil, err
	}
	if len(findings) > 0 {
		if recErr := p.datasource.CreateRejectedRecord(ctx, &model.RejectedRecord{
			BaseFileName:  number,
			CreatedAt:     time.Now(),
			Type:          model.UnitTransaction,
			CompanyNumber: company.Number,
		}); recErr != nil {
			logrus.Errorf("recording rejection of %s: %v", number, recErr)
		}
		return model.OutcomeRejected, findings, nil
	}

	if err := p.datasource.RecordTransaction(ctx, &model.StoredTransaction{
		Number:        number,
		BaseFileName:  number,
		Type:          model.UnitTransaction,
		CompanyNumber: company.Number,
		StoreID:       rec.Header.StoreID,
		MachineSerial: rec.Header.MachineSerial,
		LabelNumber:   rec.Header.LabelNumber,
		Status:        model.StatusAccepted,
		CreatedAt:     time.Now(),
		Record:        rec,
	}); err != nil {
		return model.OutcomeFailed, nil, err
	}
	if err := p.dedup.Record(ctx, model.UnitTransaction, number, company.DedupWindow(cfg.Pipeline.RetentionDays)); err != nil {
		return model.OutcomeFailed, nil, err
	}
	return model.OutcomeAccepted, nil, nil
}

// ProcessAccepted is the broker consumer for both import lanes. It
// re-parses the accepted payload, persists the record for storage (a no-op
// when first-stage persistence already landed), copies the bundle to the
// backup directory and confirms it. The full payload list travels in the
// message so multi-file bag bundles move as one; a missing primary payload
// means an earlier delivery of the same task already confirmed the unit.
func (p *Pant) ProcessAccepted(ctx context.Context, msg model.ImportMessage) error {
	acceptedDir := p.layout.Accepted(msg.Type)
	payloadPath := filepath.Join(acceptedDir, msg.FileName)
	f, err := os.Open(payloadPath)
	if os.IsNotExist(err) {
		logrus.Infof("accepted payload %s already confirmed", msg.FileName)
		return nil
	}
	if err != nil {
		return err
	}
	rec, err := codec.Parse(f)
	f.Close()
	if err != nil {
		return err
	}

	payloads := msg.Payloads
	if len(payloads) == 0 {
		payloads = []string{msg.FileName}
	}
	b := &model.FileBundle{
		BaseName: model.BaseNameFor(msg.FileName, msg.Type),
		Type:     msg.Type,
		Dir:      acceptedDir,
		Payloads: payloads,
	}
	key := unitKey(b, rec)
	if err := p.datasource.RecordTransaction(ctx, &model.StoredTransaction{
		Number:        key,
		BaseFileName:  b.BaseName,
		Type:          msg.Type,
		CompanyNumber: msg.CompanyID,
		StoreID:       rec.Header.StoreID,
		MachineSerial: rec.Header.MachineSerial,
		LabelNumber:   rec.Header.LabelNumber,
		Status:        model.StatusAccepted,
		CreatedAt:     time.Now(),
		Record:        rec,
	}); err != nil {
		return err
	}

	if err := files.CopyBundle(b, p.layout.Backup(msg.Type)); err != nil {
		return err
	}
	return files.MoveBundle(b, p.layout.Confirmed(msg.Type))
}

// MarkImportFailed flags a stored unit FAILED after second-stage processing
// exhausted its retries, which makes it visible to the backup reimporter.
// The base file name is derived from the message, with the owner suffix
// appended on acceptance stripped off again.
func (p *Pant) MarkImportFailed(ctx context.Context, msg model.ImportMessage) error {
	base := model.BaseNameFor(msg.FileName, msg.Type)
	base = strings.TrimSuffix(base, "_"+msg.CompanyID)
	logrus.Errorf("second stage of %s gave up, flagging for backup reimport", base)
	return p.datasource.MarkTransactionFailed(ctx, base)
}
