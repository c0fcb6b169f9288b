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

// Package files owns the directory tree the pipeline uses as its work
// queue. A bundle is claimed by existing in a source directory; moving it
// out via same-filesystem rename is the ownership transfer. Never
// copy+delete for moves.
package files

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nordvend/pant/model"
)

// Layout resolves every pipeline stage directory under a single root.
// Transactions and bags have parallel subtrees.
type Layout struct {
	Root string
}

func (l Layout) subtree(t model.UnitType) string {
	if t == model.UnitBag {
		return filepath.Join(l.Root, "RVM", "bags")
	}
	return filepath.Join(l.Root, "RVM", "transactions")
}

// InQueue and InQueueBig are the on-disk mirrors of the two broker lanes,
// which are named after them. No file moves through them at runtime; the
// migrate command creates them so the stage tree matches the historical
// layout operators know.
func (l Layout) InQueue(t model.UnitType) string { return filepath.Join(l.subtree(t), "inQueue") }

func (l Layout) InQueueBig(t model.UnitType) string {
	return filepath.Join(l.subtree(t), "inQueueBigFiles")
}

func (l Layout) Accepted(t model.UnitType) string { return filepath.Join(l.subtree(t), "accepted") }

func (l Layout) AlreadyExists(t model.UnitType) string {
	return filepath.Join(l.subtree(t), "alreadyExists")
}

func (l Layout) Backup(t model.UnitType) string { return filepath.Join(l.subtree(t), "backup") }

func (l Layout) Confirmed(t model.UnitType) string { return filepath.Join(l.subtree(t), "confirmed") }

// Export is the staging area for outbound owner-backend files.
func (l Layout) Export(t model.UnitType) string { return filepath.Join(l.subtree(t), "export") }

// Rejected is per company number so operators find their own rejections.
func (l Layout) Rejected(t model.UnitType, companyNumber string) string {
	return filepath.Join(l.subtree(t), "rejected", companyNumber)
}

// Failed is per company IP: the reimporter restages from here.
func (l Layout) Failed(t model.UnitType, companyIP string) string {
	return filepath.Join(l.subtree(t), "failed", companyIP)
}

// CompanyInbox is where a machine owner's backend drops AA bundles.
func (l Layout) CompanyInbox(companyIP string) string {
	return filepath.Join(l.Root, companyIP, "TRANS")
}

// CompanyRejected mirrors rejections into the owner's own tree when the
// moveFailedToCompanyRejectedDirectory option is on.
func (l Layout) CompanyRejected(companyIP string) string {
	return filepath.Join(l.Root, companyIP, "REJECTED")
}

// EnsureDir creates dir if absent. Safe to race.
func EnsureDir(dir string) error {
	return errors.Wrapf(os.MkdirAll(dir, 0755), "creating directory %s", dir)
}

// DiscoverBundles lists the complete bundles sitting in dir, one level
// deep. For AA, a bundle is complete when all four companion payloads and
// their checksum sidecars exist; for single-file channels, when the
// payload and its sidecar exist. Incomplete sets stay untouched for a
// later scan.
func DiscoverBundles(dir string, t model.UnitType, channel model.Channel) ([]model.FileBundle, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			present[e.Name()] = true
		}
	}

	var bundles []model.FileBundle
	seen := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext == model.HashExt || ext == model.ErrorExt {
			continue
		}

		base := model.BaseNameFor(name, t)
		if seen[base] {
			continue
		}

		var payloads []string
		if channel == model.ChannelAA {
			payloads = make([]string, 0, len(model.AAExtensions))
			for _, aaExt := range model.AAExtensions {
				payloads = append(payloads, base+aaExt)
			}
		} else {
			payloads = []string{name}
		}

		complete := true
		for _, p := range payloads {
			if !present[p] || !present[p+model.HashExt] {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		seen[base] = true
		bundles = append(bundles, model.FileBundle{
			BaseName: base,
			Type:     t,
			Channel:  channel,
			Dir:      dir,
			Payloads: payloads,
		})
	}

	sort.Slice(bundles, func(i, j int) bool { return bundles[i].BaseName < bundles[j].BaseName })
	return bundles, nil
}

// MoveBundle renames every file of the bundle into destDir. All-or-nothing:
// if any rename fails, files moved so far are renamed back so the bundle is
// never split across directories. Missing optional files (the error
// sidecar) are skipped. On success the bundle's Dir points at destDir.
func MoveBundle(b *model.FileBundle, destDir string) error {
	if err := EnsureDir(destDir); err != nil {
		return err
	}

	var moved []string
	for _, name := range b.AllFiles() {
		src := filepath.Join(b.Dir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(src, filepath.Join(destDir, name)); err != nil {
			for _, m := range moved {
				_ = os.Rename(filepath.Join(destDir, m), filepath.Join(b.Dir, m))
			}
			return errors.Wrapf(err, "moving %s to %s", name, destDir)
		}
		moved = append(moved, name)
	}

	b.Dir = destDir
	return nil
}

// RenameBundle renames every bundle file in place, mapping each file name
// through rename. Used to append the company number on acceptance.
func RenameBundle(b *model.FileBundle, rename func(string) string) error {
	for i, p := range b.Payloads {
		newName := rename(p)
		if newName == p {
			continue
		}
		if err := os.Rename(filepath.Join(b.Dir, p), filepath.Join(b.Dir, newName)); err != nil {
			return errors.Wrapf(err, "renaming %s", p)
		}
		// The old sidecar no longer matches the name; the caller
		// regenerates it for the renamed payload.
		_ = os.Remove(filepath.Join(b.Dir, p+model.HashExt))
		b.Payloads[i] = newName
	}
	return nil
}

// CopyBundle duplicates the bundle's files into destDir without claiming
// ownership. Used for backups and the company rejected mirror.
func CopyBundle(b *model.FileBundle, destDir string) error {
	if err := EnsureDir(destDir); err != nil {
		return err
	}
	for _, name := range b.AllFiles() {
		src := filepath.Join(b.Dir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(src, filepath.Join(destDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "copying %s to %s", src, dst)
	}
	return out.Close()
}

// FindMatching walks root and returns every file whose name starts with
// baseName. Used by the rejected-record cleanup to purge all traces of a
// unit.
func FindMatching(root, baseName string) ([]string, error) {
	var matches []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() && strings.HasPrefix(info.Name(), baseName) {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, errors.Wrapf(err, "walking %s", root)
}

// OlderThan lists the files in dir whose modification time is before
// cutoff.
func OlderThan(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	var old []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			old = append(old, filepath.Join(dir, e.Name()))
		}
	}
	return old, nil
}
