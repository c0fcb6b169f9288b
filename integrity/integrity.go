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

// Package integrity verifies payload files against their checksum sidecars
// and writes the structured error sidecars of rejected bundles. The gate
// runs before any parsing: a corrupted payload must never reach the rule
// engine.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/nordvend/pant/model"
)

// Error marks a checksum failure: a missing sidecar or a hash mismatch.
// Always a hard rejection, never retried.
type Error struct {
	File   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("integrity check failed for %s: %s", e.File, e.Reason)
}

// IsIntegrity reports whether err is (or wraps) an integrity Error.
func IsIntegrity(err error) bool {
	var ie *Error
	return errors.As(err, &ie)
}

// Checksum computes the hex-encoded content hash of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s for hashing", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the payload's checksum and compares it against the hex
// value stored in the sidecar. A missing sidecar is an integrity Error, not
// an I/O failure.
func Verify(payloadPath, sidecarPath string) error {
	stored, err := os.ReadFile(sidecarPath)
	if os.IsNotExist(err) {
		return &Error{File: filepath.Base(payloadPath), Reason: "checksum sidecar missing"}
	}
	if err != nil {
		return errors.Wrapf(err, "reading sidecar %s", sidecarPath)
	}

	actual, err := Checksum(payloadPath)
	if err != nil {
		return err
	}

	expected := strings.ToLower(strings.TrimSpace(string(stored)))
	if actual != expected {
		return &Error{
			File:   filepath.Base(payloadPath),
			Reason: fmt.Sprintf("checksum mismatch: sidecar %s, payload %s", expected, actual),
		}
	}
	return nil
}

// VerifyBundle checks every payload of the bundle against its sidecar. A
// bundle is only eligible for parsing once all required sidecars exist and
// validate; the first failure wins.
func VerifyBundle(b *model.FileBundle) error {
	if len(b.Payloads) == 0 {
		return &Error{File: b.BaseName, Reason: "bundle has no payload files"}
	}
	for _, p := range b.Payloads {
		payload := filepath.Join(b.Dir, p)
		if err := Verify(payload, payload+model.HashExt); err != nil {
			return err
		}
	}
	return nil
}

// WriteChecksum writes (or rewrites) the checksum sidecar for path. Used
// after accepted files are renamed, so the sidecar matches the new
// artifact.
func WriteChecksum(path string) error {
	sum, err := Checksum(path)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path+model.HashExt, []byte(sum), 0644), "writing sidecar for %s", path)
}

// WriteErrorSidecar writes the structured error document next to a moved
// bundle. dir is the destination directory, baseName the bundle base name.
func WriteErrorSidecar(dir, baseName string, sidecar model.ErrorSidecar) error {
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshalling error sidecar")
	}
	path := filepath.Join(dir, baseName+model.ErrorExt)
	return errors.Wrapf(os.WriteFile(path, data, 0644), "writing error sidecar %s", path)
}
