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

	"github.com/sirupsen/logrus"

	"github.com/nordvend/pant/codec"
	"github.com/nordvend/pant/integrity"
	"github.com/nordvend/pant/internal/files"
	"github.com/nordvend/pant/model"
)

func exportKind(t model.UnitType) string {
	if t == model.UnitBag {
		return "BAG"
	}
	return "TRANS"
}

// ExportRecord serializes the record back to its wire format under the
// export staging directory, writes its checksum sidecar and, when a
// secure-transfer client is configured, pushes both files to remoteDir.
// The staged copy stays local either way.
func (p *Pant) ExportRecord(ctx context.Context, rec *model.ParsedRecord, t model.UnitType, remoteDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	outDir := p.layout.Export(t)
	if err := files.EnsureDir(outDir); err != nil {
		return err
	}

	name := codec.ExportFileName(exportKind(t), rec.Header.Version)
	local := filepath.Join(outDir, name)
	f, err := os.Create(local)
	if err != nil {
		return err
	}
	if err := codec.Write(f, rec); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := integrity.WriteChecksum(local); err != nil {
		return err
	}

	if p.transfer == nil || remoteDir == "" {
		return nil
	}
	for _, staged := range []string{local, local + model.HashExt} {
		if err := p.transfer.Put(staged, path.Join(remoteDir, filepath.Base(staged))); err != nil {
			return err
		}
		logrus.Infof("exported %s to %s", filepath.Base(staged), remoteDir)
	}
	return nil
}
