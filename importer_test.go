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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordvend/pant/config"
	"github.com/nordvend/pant/dedup"
	"github.com/nordvend/pant/integrity"
	"github.com/nordvend/pant/internal/cache"
	"github.com/nordvend/pant/internal/files"
	redis_db "github.com/nordvend/pant/internal/redis-db"
	"github.com/nordvend/pant/model"
	"github.com/nordvend/pant/validation"
)

const testBaseName = "2201000000000000000001"

type mockDataSource struct {
	mu sync.Mutex

	companies    []model.CompanyProfile
	articles     map[string]*model.Article
	srn          map[string]bool
	stored       []*model.StoredTransaction
	rejections   []*model.RejectedRecord
	failedTxns   []model.StoredTransaction
	needDeletion []model.RejectedRecord
	deletedTxns  []string
	markedDone   []string
	removedRecs  []string
	labelInUse   bool

	articleErr error
}

func newMockDataSource() *mockDataSource {
	return &mockDataSource{
		articles: map[string]*model.Article{
			"7038010001501": {Number: "7038010001501", Weight: 35, Volume: 50, MaterialCode: 2},
		},
		srn: map[string]bool{},
	}
}

func (m *mockDataSource) FindAllCompanies(ctx context.Context) ([]model.CompanyProfile, error) {
	return m.companies, nil
}

func (m *mockDataSource) CompanyByNumber(ctx context.Context, number string) (*model.CompanyProfile, error) {
	for i := range m.companies {
		if m.companies[i].Number == number {
			return &m.companies[i], nil
		}
	}
	return nil, nil
}

func (m *mockDataSource) CompanyFirstByIPAddress(ctx context.Context, ip string) (*model.CompanyProfile, error) {
	for i := range m.companies {
		if m.companies[i].IPAddress == ip {
			return &m.companies[i], nil
		}
	}
	return nil, nil
}

func (m *mockDataSource) CharityExists(ctx context.Context, number string) (bool, error) {
	return true, nil
}

func (m *mockDataSource) ArticleByNumber(ctx context.Context, number string) (*model.Article, error) {
	if m.articleErr != nil {
		return nil, m.articleErr
	}
	return m.articles[number], nil
}

func (m *mockDataSource) ArticlesByMaterialCodes(ctx context.Context, codes []int) ([]model.Article, error) {
	return nil, nil
}

func (m *mockDataSource) RulesFor(ctx context.Context, ownerNumber, machineSerial string) ([]model.ImporterRule, error) {
	return nil, nil
}

func (m *mockDataSource) ExistsWithinRange(ctx context.Context, customerNumber string, label int64) (bool, error) {
	return true, nil
}

func (m *mockDataSource) UnitExists(ctx context.Context, t model.UnitType, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.srn[string(t)+":"+key], nil
}

func (m *mockDataSource) RecordUnit(ctx context.Context, t model.UnitType, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.srn[string(t)+":"+key] = true
	return nil
}

func (m *mockDataSource) RecordTransaction(ctx context.Context, txn *model.StoredTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.stored {
		if existing.Number == txn.Number {
			return nil
		}
	}
	m.stored = append(m.stored, txn)
	return nil
}

func (m *mockDataSource) TransactionExistsByNumber(ctx context.Context, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.stored {
		if txn.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDataSource) LabelUsed(ctx context.Context, label string) (bool, error) {
	return m.labelInUse, nil
}

func (m *mockDataSource) MarkTransactionFailed(ctx context.Context, baseFileName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.stored {
		if txn.BaseFileName == baseFileName {
			txn.Status = model.StatusFailed
		}
	}
	return nil
}

func (m *mockDataSource) FindFailedTransactions(ctx context.Context) ([]model.StoredTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.StoredTransaction{}, m.failedTxns...)
	for _, txn := range m.stored {
		if txn.Status == model.StatusFailed {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (m *mockDataSource) DeleteTransaction(ctx context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedTxns = append(m.deletedTxns, number)
	return nil
}

func (m *mockDataSource) CreateRejectedRecord(ctx context.Context, rec *model.RejectedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, rec)
	return nil
}

func (m *mockDataSource) FindRecordsNeedingDeletion(ctx context.Context) ([]model.RejectedRecord, error) {
	return m.needDeletion, nil
}

func (m *mockDataSource) MarkRejectedRecordDeleted(ctx context.Context, baseFileName, companyNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedDone = append(m.markedDone, baseFileName+":"+companyNumber)
	return nil
}

func (m *mockDataSource) DeleteRejectedRecord(ctx context.Context, baseFileName, companyNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removedRecs = append(m.removedRecs, baseFileName+":"+companyNumber)
	return nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sends int
}

func (f *fakeMailer) Send(subject, attachmentName string, findings []model.Finding, recipients []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return nil
}

func newTestPant(t *testing.T, ds *mockDataSource) *Pant {
	t.Helper()
	root := t.TempDir()
	config.MockConfig(&config.Configuration{
		Pipeline: config.PipelineConfig{
			Root:             root,
			BigFileThreshold: config.DefaultBigFileThreshold,
			RetentionDays:    config.DefaultRetentionDays,
		},
		Queue: config.QueueConfig{
			TransactionQueue: "in_queue",
			BigFileQueue:     "in_queue_big_files",
			JobsQueue:        "jobs",
		},
	})

	mr := miniredis.RunT(t)
	rds, err := redis_db.NewRedisClient([]string{"redis://" + mr.Addr()})
	require.NoError(t, err)
	latest := cache.NewFromRedis(rds)

	return &Pant{
		cache:      latest,
		dedup:      dedup.NewIndex(latest, ds),
		engine:     validation.NewEngine(ds, ds, ds, ds, ds),
		datasource: ds,
		mailer:     &fakeMailer{},
		redis:      rds.Client(),
		layout:     files.Layout{Root: root},
	}
}

func testCompany() *model.CompanyProfile {
	return &model.CompanyProfile{
		Number:                   "2201",
		Name:                     "Dagligvare Nord AS",
		Type:                     model.CompanyRvmOwner,
		IPAddress:                "10.1.2.3",
		StoreID:                  "5501",
		MachineSerials:           []string{"RVM001"},
		Version:                  model.V15,
		Channel:                  model.ChannelSftp,
		AllowDataYoungerThanDays: 30,
	}
}

func validTransactionFile(ts time.Time) string {
	return fmt.Sprintf("HDR;15;%s;5501;RVM001\nPOS;7038010001501;38;2;1;1;0\nSUM;1;1;1;0\n", ts.Format(model.TimestampLayout))
}

// stageBundle writes a payload and its checksum sidecar into dir and
// returns the bundle ready for import.
func stageBundle(t *testing.T, dir, baseName, content string) *model.FileBundle {
	t.Helper()
	require.NoError(t, files.EnsureDir(dir))
	payload := baseName + ".txt"
	require.NoError(t, os.WriteFile(filepath.Join(dir, payload), []byte(content), 0644))
	require.NoError(t, integrity.WriteChecksum(filepath.Join(dir, payload)))
	return &model.FileBundle{
		BaseName: baseName,
		Type:     model.UnitTransaction,
		Channel:  model.ChannelSftp,
		Dir:      dir,
		Payloads: []string{payload},
	}
}

func validBagFile(ts time.Time) string {
	return fmt.Sprintf("HDR;16.2;%s;5501;RVM001;1.0;1234567;GL\nPOS;7038010001501;38;2;1;1;0\nSUM;1;1;1;0;0\n", ts.Format(model.TimestampLayout))
}

// stageAABundle writes the four companion payloads of an AA bag bundle and
// their checksum sidecars. Only the .ready file carries the record.
func stageAABundle(t *testing.T, dir, baseName, content string) *model.FileBundle {
	t.Helper()
	require.NoError(t, files.EnsureDir(dir))
	payloads := make([]string, 0, len(model.AAExtensions))
	for i, ext := range model.AAExtensions {
		name := baseName + ext
		body := content
		if i > 0 {
			body = "companion\n"
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
		require.NoError(t, integrity.WriteChecksum(filepath.Join(dir, name)))
		payloads = append(payloads, name)
	}
	return &model.FileBundle{
		BaseName: baseName,
		Type:     model.UnitBag,
		Channel:  model.ChannelAA,
		Dir:      dir,
		Payloads: payloads,
	}
}

func readSidecar(t *testing.T, dir, baseName string) model.ErrorSidecar {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, baseName+model.ErrorExt))
	require.NoError(t, err)
	var sc model.ErrorSidecar
	require.NoError(t, json.Unmarshal(data, &sc))
	return sc
}

func TestImportAccepted(t *testing.T) {
	ds := newMockDataSource()
	p := newTestPant(t, ds)
	company := testCompany()

	inbox := p.layout.CompanyInbox(company.IPAddress)
	b := stageBundle(t, inbox, testBaseName, validTransactionFile(time.Now().Add(-time.Hour)))

	outcome, err := p.ImportBundle(context.Background(), company, b)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAccepted, outcome)

	// Payload renamed with the owning company and moved out of the inbox.
	accepted := filepath.Join(p.layout.Accepted(model.UnitTransaction), testBaseName+"_2201.txt")
	assert.FileExists(t, accepted)
	assert.FileExists(t, accepted+model.HashExt)
	assert.NoFileExists(t, filepath.Join(inbox, testBaseName+".txt"))
	require.NoError(t, integrity.Verify(accepted, accepted+model.HashExt))

	require.Len(t, ds.stored, 1)
	assert.Equal(t, testBaseName, ds.stored[0].Number)
	assert.Equal(t, model.StatusAccepted, ds.stored[0].Status)
	assert.Equal(t, "5501", ds.stored[0].StoreID)
	assert.True(t, ds.srn["TRANSACTION:"+testBaseName])
}

func TestImportDuplicateSilentlyParked(t *testing.T) {
	ds := newMockDataSource()
	p := newTestPant(t, ds)
	company := testCompany()
	inbox := p.layout.CompanyInbox(company.IPAddress)
	content := validTransactionFile(time.Now().Add(-time.Hour))

	b := stageBundle(t, inbox, testBaseName, content)
	outcome, err := p.ImportBundle(context.Background(), company, b)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeAccepted, outcome)

	// Same unit delivered again.
	b2 := stageBundle(t, inbox, testBaseName, content)
	outcome, err = p.ImportBundle(context.Background(), company, b2)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAlreadyExists, outcome)

	parked := filepath.Join(p.layout.AlreadyExists(model.UnitTransaction), testBaseName+".txt")
	assert.FileExists(t, parked)
	assert.Len(t, ds.stored, 1)
	assert.Empty(t, ds.rejections)
}

func TestImportDuplicateRejectedWhenCompanyWantsNotice(t *testing.T) {
	ds := newMockDataSource()
	p := newTestPant(t, ds)
	company := testCompany()
	company.NotifyAboutDoubleTransactions = true

	// The unit is already in the historical index.
	ds.srn["TRANSACTION:"+testBaseName] = true

	inbox := p.layout.CompanyInbox(company.IPAddress)
	b := stageBundle(t, inbox, testBaseName, validTransactionFile(time.Now().Add(-time.Hour)))

	outcome, err := p.ImportBundle(context.Background(), company, b)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRejected, outcome)

	rejectedDir := p.layout.Rejected(model.UnitTransaction, company.Number)
	assert.FileExists(t, filepath.Join(rejectedDir, testBaseName+".txt"))
	require.Len(t, ds.rejections, 1)
	assert.Equal(t, testBaseName, ds.rejections[0].BaseFileName)
}

func TestImportChecksumMismatchRejectedBeforeParse(t *testing.T) {
	ds := newMockDataSource()
	p := newTestPant(t, ds)
	company := testCompany()
	inbox := p.layout.CompanyInbox(company.IPAddress)

	b := stageBundle(t, inbox, testBaseName, validTransactionFile(time.Now().Add(-time.Hour)))
	// Corrupt the sidecar after staging.
	require.NoError(t, os.WriteFile(filepath.Join(inbox, b.PrimaryPayload()+model.HashExt), []byte("deadbeef"), 0644))

	outcome, err := p.ImportBundle(context.Background(), company, b)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRejected, outcome)
	assert.Empty(t, ds.stored)
	require.Len(t, ds.rejections, 1)

	rejectedDir := p.layout.Rejected(model.UnitTransaction, company.Number)
	sc := readSidecar(t, rejectedDir, testBaseName)
	assert.NotEmpty(t, sc.Details)
}

func TestImportStructuralGarbageRejected(t *testing.T) {
	ds := newMockDataSource()
	p := newTestPant(t, ds)
	company := testCompany()
	inbox := p.layout.CompanyInbox(company.IPAddress)

	// Checksum is valid, content is not a record.
	b := stageBundle(t, inbox, testBaseName, "XXX;this;is;not;a;record\n")

	outcome, err := p.ImportBundle(context.Background(), company, b)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRejected, outcome)
	assert.Empty(t, ds.stored)
	require.Len(t, ds.rejections, 1)
}

func TestImportValidationFindingsRejected(t *testing.T) {
	ds := newMockDataSource()
	p := newTestPant(t, ds)
	company := testCompany()
	inbox := p.layout.CompanyInbox(company.IPAddress)

	// Two body lines, footer declares three.
	content := fmt.Sprintf(
		"HDR;15;%s;5501;RVM001\nPOS;7038010001501;38;2;1;1;0\nPOS;7038010001501;39;2;1;1;0\nSUM;3;2;2;0\n",
		time.Now().Add(-time.Hour).Format(model.TimestampLayout))
	b := stageBundle(t, inbox, testBaseName, content)

	outcome, err := p.ImportBundle(context.Background(), company, b)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRejected, outcome)

	rejectedDir := p.layout.Rejected(model.UnitTransaction, company.Number)
	sc := readSidecar(t, rejectedDir, testBaseName)
	require.NotEmpty(t, sc.ImportMessages)
	assert.Equal(t, "Total read amount is 2, does not equal total amount field value: 3", sc.ImportMessages[0].Message)
	assert.Equal(t, 3, sc.ImportMessages[0].Line)
}

func TestImportLookupErrorFailsTransiently(t *testing.T) {
	ds := newMockDataSource()
	ds.articleErr = errors.New("catalog unavailable")
	p := newTestPant(t, ds)
	company := testCompany()
	inbox := p.layout.CompanyInbox(company.IPAddress)

	b := stageBundle(t, inbox, testBaseName, validTransactionFile(time.Now().Add(-time.Hour)))

	outcome, err := p.ImportBundle(context.Background(), company, b)
	require.Error(t, err)
	assert.Equal(t, model.OutcomeFailed, outcome)

	failedDir := p.layout.Failed(model.UnitTransaction, company.IPAddress)
	assert.FileExists(t, filepath.Join(failedDir, testBaseName+".txt"))
	// Transient failures are restaged later, not tracked as rejections.
	assert.Empty(t, ds.rejections)
}

func TestProcessAcceptedConfirmsAndBacksUp(t *testing.T) {
	ds := newMockDataSource()
	p := newTestPant(t, ds)

	acceptedDir := p.layout.Accepted(model.UnitTransaction)
	fileName := testBaseName + "_2201.txt"
	require.NoError(t, files.EnsureDir(acceptedDir))
	require.NoError(t, os.WriteFile(filepath.Join(acceptedDir, fileName),
		[]byte(validTransactionFile(time.Now().Add(-time.Hour))), 0644))
	require.NoError(t, integrity.WriteChecksum(filepath.Join(acceptedDir, fileName)))

	msg := model.ImportMessage{FileName: fileName, CompanyID: "2201", Type: model.UnitTransaction}
	require.NoError(t, p.ProcessAccepted(context.Background(), msg))

	assert.FileExists(t, filepath.Join(p.layout.Backup(model.UnitTransaction), fileName))
	assert.FileExists(t, filepath.Join(p.layout.Confirmed(model.UnitTransaction), fileName))
	assert.NoFileExists(t, filepath.Join(acceptedDir, fileName))
	require.Len(t, ds.stored, 1)

	// Redelivery of the same task is a no-op.
	require.NoError(t, p.ProcessAccepted(context.Background(), msg))
	assert.Len(t, ds.stored, 1)
}

func TestProcessAcceptedMovesWholeBagBundle(t *testing.T) {
	ds := newMockDataSource()
	p := newTestPant(t, ds)
	company := testCompany()
	company.Channel = model.ChannelAA

	inbox := p.layout.CompanyInbox(company.IPAddress)
	b := stageAABundle(t, inbox, "BAG0001", validBagFile(time.Now().Add(-time.Hour)))

	outcome, err := p.ImportBundle(context.Background(), company, b)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeAccepted, outcome)

	// The dispatched message carries every renamed payload.
	msg := model.ImportMessage{
		FileName:  b.PrimaryPayload(),
		CompanyID: company.Number,
		Type:      b.Type,
		Payloads:  b.Payloads,
	}
	require.NoError(t, p.ProcessAccepted(context.Background(), msg))

	// All four companions and their sidecars travel together; nothing
	// stays behind in accepted.
	for _, ext := range model.AAExtensions {
		name := "BAG0001_2201" + ext
		assert.FileExists(t, filepath.Join(p.layout.Confirmed(model.UnitBag), name))
		assert.FileExists(t, filepath.Join(p.layout.Confirmed(model.UnitBag), name+model.HashExt))
		assert.FileExists(t, filepath.Join(p.layout.Backup(model.UnitBag), name))
		assert.NoFileExists(t, filepath.Join(p.layout.Accepted(model.UnitBag), name))
		assert.NoFileExists(t, filepath.Join(p.layout.Accepted(model.UnitBag), name+model.HashExt))
	}
	require.Len(t, ds.stored, 1)
	assert.Equal(t, "1234567", ds.stored[0].Number)
}

func TestExhaustedSecondStageRestagesFromBackup(t *testing.T) {
	ds := newMockDataSource()
	p := newTestPant(t, ds)
	company := testCompany()
	ds.companies = []model.CompanyProfile{*company}

	inbox := p.layout.CompanyInbox(company.IPAddress)
	b := stageBundle(t, inbox, testBaseName, validTransactionFile(time.Now().Add(-time.Hour)))
	outcome, err := p.ImportBundle(context.Background(), company, b)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeAccepted, outcome)

	// The backup copy landed before the second stage gave up.
	require.NoError(t, files.CopyBundle(b, p.layout.Backup(model.UnitTransaction)))

	msg := model.ImportMessage{
		FileName:  b.PrimaryPayload(),
		CompanyID: company.Number,
		Type:      model.UnitTransaction,
		Payloads:  b.Payloads,
	}
	require.NoError(t, p.MarkImportFailed(context.Background(), msg))
	require.Equal(t, model.StatusFailed, ds.stored[0].Status)

	require.NoError(t, p.RunBackupReimport(context.Background()))

	assert.FileExists(t, filepath.Join(inbox, testBaseName+"_2201.txt"))
	assert.Contains(t, ds.deletedTxns, testBaseName)
}
