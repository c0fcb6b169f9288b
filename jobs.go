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
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nordvend/pant/config"
	"github.com/nordvend/pant/internal/files"
	redlock "github.com/nordvend/pant/internal/lock"
	"github.com/nordvend/pant/internal/notification"
	"github.com/nordvend/pant/model"
)

// Job trigger names, also used as broker task types for on-demand runs.
const (
	JobStagingImport   = "job:staging_import"
	JobFailedReimport  = "job:failed_reimport"
	JobBackupReimport  = "job:backup_reimport"
	JobExpiredCleanup  = "job:expired_cleanup"
	JobRejectedCleanup = "job:rejected_cleanup"
)

var unitTypes = []model.UnitType{model.UnitTransaction, model.UnitBag}

// Scheduler runs the pipeline's periodic jobs on their configured cron
// specs.
type Scheduler struct {
	pant *Pant
	cron *cron.Cron
}

// NewScheduler builds a Scheduler over the service.
func NewScheduler(p *Pant) *Scheduler {
	return &Scheduler{pant: p, cron: cron.New()}
}

// Start registers every job under its configured spec and starts the cron
// loop.
func (s *Scheduler) Start() error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	jobs := []struct {
		spec string
		name string
	}{
		{cfg.Scheduler.StagingImportSpec, JobStagingImport},
		{cfg.Scheduler.FailedReimportSpec, JobFailedReimport},
		{cfg.Scheduler.BackupReimportSpec, JobBackupReimport},
		{cfg.Scheduler.ExpiredCleanupSpec, JobExpiredCleanup},
		{cfg.Scheduler.RejectedCleanupSpec, JobRejectedCleanup},
	}
	for _, j := range jobs {
		job := j
		if _, err := s.cron.AddFunc(job.spec, func() {
			if err := s.pant.RunJob(context.Background(), job.name); err != nil {
				logrus.Errorf("job %s: %v", job.name, err)
				notification.NotifyError(err)
			}
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// jobLockTimeout bounds how long a crashed process can hold a job lock.
const jobLockTimeout = 30 * time.Minute

// RunJob dispatches an on-demand run by trigger name. Used by the broker
// consumer for the jobs lane and by the cron scheduler. A per-job Redis
// lock keeps an invocation from overlapping the same job in another
// process; a held lock means the job is already running and the trigger
// is dropped.
func (p *Pant) RunJob(ctx context.Context, name string) error {
	locker := redlock.NewLocker(p.redis, "job-lock:"+name, model.GenerateUUIDWithSuffix("job"))
	if err := locker.Lock(ctx, jobLockTimeout); err != nil {
		logrus.Infof("job %s already running, skipping trigger", name)
		return nil
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error("failed to release lock", err)
		}
	}(locker, ctx)

	switch name {
	case JobStagingImport:
		return p.RunStagingImport(ctx)
	case JobFailedReimport:
		return p.RunFailedReimport(ctx)
	case JobBackupReimport:
		return p.RunBackupReimport(ctx)
	case JobExpiredCleanup:
		return p.RunExpiredCleanup(ctx)
	case JobRejectedCleanup:
		return p.RunRejectedCleanup(ctx)
	default:
		logrus.Warnf("unknown job trigger %q", name)
		return nil
	}
}

// RunStagingImport scans every delivering company's inbox and drives each
// complete bundle through the pipeline. Companies without an IP address or
// on the REST channel deliver nothing by file and are skipped. When a
// secure-transfer client is configured, SFTP companies' remote inboxes
// are drained into the local one first.
func (p *Pant) RunStagingImport(ctx context.Context) error {
	companies, err := p.datasource.FindAllCompanies(ctx)
	if err != nil {
		return err
	}
	for i := range companies {
		company := &companies[i]
		if company.IPAddress == "" {
			continue
		}
		var t model.UnitType
		switch company.Channel {
		case model.ChannelAA:
			t = model.UnitBag
		case model.ChannelSftp:
			t = model.UnitTransaction
			p.pullRemoteInbox(company)
		default:
			continue
		}

		inbox := p.layout.CompanyInbox(company.IPAddress)
		bundles, err := files.DiscoverBundles(inbox, t, company.Channel)
		if err != nil {
			logrus.Errorf("scanning inbox of %s: %v", company.Number, err)
			continue
		}
		for j := range bundles {
			outcome, err := p.ImportBundle(ctx, company, &bundles[j])
			if err != nil {
				logrus.Errorf("importing %s: %v", bundles[j].BaseName, err)
				continue
			}
			logrus.Infof("imported %s from %s: %s", bundles[j].BaseName, company.Number, outcome)
		}
	}
	return nil
}

// pullRemoteInbox drains the company's remote TRANS directory into the
// local inbox. Best effort; the files stay remote on any error and are
// retried next scan.
func (p *Pant) pullRemoteInbox(company *model.CompanyProfile) {
	if p.transfer == nil {
		return
	}
	remoteDir := path.Join("/", company.IPAddress, "TRANS")
	names, err := p.transfer.List(remoteDir)
	if err != nil {
		logrus.Errorf("listing remote inbox of %s: %v", company.Number, err)
		return
	}
	inbox := p.layout.CompanyInbox(company.IPAddress)
	if err := files.EnsureDir(inbox); err != nil {
		logrus.Error(err)
		return
	}
	for _, name := range names {
		remote := path.Join(remoteDir, name)
		if err := p.transfer.Get(remote, filepath.Join(inbox, name)); err != nil {
			logrus.Errorf("fetching %s: %v", remote, err)
			continue
		}
		if err := p.transfer.Remove(remote); err != nil {
			logrus.Errorf("removing %s: %v", remote, err)
		}
	}
}

// RunFailedReimport restages files from the per-IP failed directories back
// into the owning company's inbox so the next staging scan retries them.
// Stale error sidecars are dropped rather than restaged.
func (p *Pant) RunFailedReimport(ctx context.Context) error {
	companies, err := p.datasource.FindAllCompanies(ctx)
	if err != nil {
		return err
	}
	for i := range companies {
		company := &companies[i]
		if company.IPAddress == "" {
			continue
		}
		inbox := p.layout.CompanyInbox(company.IPAddress)
		for _, t := range unitTypes {
			src := p.layout.Failed(t, company.IPAddress)
			entries, err := os.ReadDir(src)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				logrus.Errorf("listing %s: %v", src, err)
				continue
			}
			if len(entries) > 0 {
				if err := files.EnsureDir(inbox); err != nil {
					logrus.Error(err)
					continue
				}
			}
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				name := entry.Name()
				if strings.HasSuffix(name, model.ErrorExt) {
					_ = os.Remove(filepath.Join(src, name))
					continue
				}
				if err := os.Rename(filepath.Join(src, name), filepath.Join(inbox, name)); err != nil {
					logrus.Errorf("restaging %s: %v", name, err)
				}
			}
		}
	}
	return nil
}

// RunBackupReimport restages units whose second stage failed: for every
// FAILED row in the transactional store, the backed-up files go back to
// the owner's inbox and the row is removed so the rerun starts clean.
func (p *Pant) RunBackupReimport(ctx context.Context) error {
	failed, err := p.datasource.FindFailedTransactions(ctx)
	if err != nil {
		return err
	}
	for i := range failed {
		txn := &failed[i]
		company, err := p.datasource.CompanyByNumber(ctx, txn.CompanyNumber)
		if err != nil {
			logrus.Errorf("loading company %s: %v", txn.CompanyNumber, err)
			continue
		}
		if company == nil || company.IPAddress == "" {
			logrus.Warnf("failed unit %s has no restageable company", txn.Number)
			continue
		}
		matches, err := files.FindMatching(p.layout.Backup(txn.Type), txn.BaseFileName)
		if err != nil {
			logrus.Errorf("finding backup of %s: %v", txn.BaseFileName, err)
			continue
		}
		if len(matches) == 0 {
			logrus.Warnf("no backup files for failed unit %s", txn.BaseFileName)
			continue
		}
		inbox := p.layout.CompanyInbox(company.IPAddress)
		if err := files.EnsureDir(inbox); err != nil {
			logrus.Error(err)
			continue
		}
		for _, m := range matches {
			if err := os.Rename(m, filepath.Join(inbox, filepath.Base(m))); err != nil {
				logrus.Errorf("restaging %s: %v", m, err)
			}
		}
		if err := p.datasource.DeleteTransaction(ctx, txn.Number); err != nil {
			logrus.Errorf("clearing failed row %s: %v", txn.Number, err)
		}
	}
	return nil
}

// RunExpiredCleanup deletes confirmed and already-exists files older than
// the owning company's retention window, judged by file modification time.
// Files that cannot be attributed to a company fall under the default
// window.
func (p *Pant) RunExpiredCleanup(ctx context.Context) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	companies, err := p.datasource.FindAllCompanies(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	defaultCutoff := now.Add(-time.Duration(cfg.Pipeline.RetentionDays) * 24 * time.Hour)
	for _, t := range unitTypes {
		for _, dir := range []string{p.layout.Confirmed(t), p.layout.AlreadyExists(t)} {
			// The widest window any company holds bounds the scan.
			scanCutoff := defaultCutoff
			for i := range companies {
				c := now.Add(-companies[i].DedupWindow(cfg.Pipeline.RetentionDays))
				if c.Before(scanCutoff) {
					scanCutoff = c
				}
			}
			old, err := files.OlderThan(dir, scanCutoff)
			if err != nil {
				logrus.Errorf("scanning %s: %v", dir, err)
				continue
			}
			for _, stale := range old {
				cutoff := defaultCutoff
				if owner := ownerOf(companies, filepath.Base(stale)); owner != nil {
					cutoff = now.Add(-owner.DedupWindow(cfg.Pipeline.RetentionDays))
				}
				info, err := os.Stat(stale)
				if err != nil || info.ModTime().After(cutoff) {
					continue
				}
				if err := os.Remove(stale); err != nil {
					logrus.Errorf("removing expired %s: %v", stale, err)
				}
			}
		}
	}
	return nil
}

// ownerOf attributes an accepted file to a company by the number suffix
// appended on acceptance.
func ownerOf(companies []model.CompanyProfile, fileName string) *model.CompanyProfile {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	for i := range companies {
		if strings.HasSuffix(base, "_"+companies[i].Number) {
			return &companies[i]
		}
	}
	return nil
}

// RunRejectedCleanup consumes the to-be-removed feed: for every rejected
// record flagged for deletion, every file matching its base name anywhere
// under the root is deleted, then the record is marked deleted (or removed
// outright for externally sourced entries).
func (p *Pant) RunRejectedCleanup(ctx context.Context) error {
	records, err := p.datasource.FindRecordsNeedingDeletion(ctx)
	if err != nil {
		return err
	}
	for i := range records {
		rec := &records[i]
		matches, err := files.FindMatching(p.layout.Root, rec.BaseFileName)
		if err != nil {
			logrus.Errorf("finding files of %s: %v", rec.BaseFileName, err)
			continue
		}
		removed := true
		for _, m := range matches {
			if err := os.Remove(m); err != nil {
				logrus.Errorf("removing %s: %v", m, err)
				removed = false
			}
		}
		if !removed {
			continue
		}
		if rec.External {
			err = p.datasource.DeleteRejectedRecord(ctx, rec.BaseFileName, rec.CompanyNumber)
		} else {
			err = p.datasource.MarkRejectedRecordDeleted(ctx, rec.BaseFileName, rec.CompanyNumber)
		}
		if err != nil {
			logrus.Errorf("closing rejected record %s: %v", rec.Key(), err)
		}
	}
	return nil
}
