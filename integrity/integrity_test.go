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

package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordvend/pant/model"
)

func writePayload(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeSidecarFor(t *testing.T, payload string, content string) {
	t.Helper()
	sum := sha256.Sum256([]byte(content))
	require.NoError(t, os.WriteFile(payload+model.HashExt, []byte(hex.EncodeToString(sum[:])), 0644))
}

func TestVerifyMatch(t *testing.T) {
	dir := t.TempDir()
	payload := writePayload(t, dir, "file.ready", "HDR;15;...")
	writeSidecarFor(t, payload, "HDR;15;...")

	assert.NoError(t, Verify(payload, payload+model.HashExt))
}

func TestVerifyMismatch(t *testing.T) {
	dir := t.TempDir()
	payload := writePayload(t, dir, "file.ready", "HDR;15;...")
	writeSidecarFor(t, payload, "tampered content")

	err := Verify(payload, payload+model.HashExt)
	require.Error(t, err)
	assert.True(t, IsIntegrity(err))
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestVerifyMissingSidecar(t *testing.T) {
	dir := t.TempDir()
	payload := writePayload(t, dir, "file.ready", "content")

	err := Verify(payload, payload+model.HashExt)
	require.Error(t, err)
	assert.True(t, IsIntegrity(err))
	assert.Contains(t, err.Error(), "sidecar missing")
}

func TestVerifySidecarWhitespaceAndCase(t *testing.T) {
	dir := t.TempDir()
	payload := writePayload(t, dir, "file.ready", "content")

	sum := sha256.Sum256([]byte("content"))
	upper := "  " + hex.EncodeToString(sum[:]) + "\n"
	require.NoError(t, os.WriteFile(payload+model.HashExt, []byte(upper), 0644))

	assert.NoError(t, Verify(payload, payload+model.HashExt))
}

func TestVerifyBundleAllSidecarsRequired(t *testing.T) {
	dir := t.TempDir()
	b := &model.FileBundle{
		BaseName: "BAG_1",
		Type:     model.UnitBag,
		Channel:  model.ChannelAA,
		Dir:      dir,
		Payloads: []string{"BAG_1.ready", "BAG_1.batch", "BAG_1.sls", "BAG_1.nls"},
	}

	for _, p := range b.Payloads {
		payload := writePayload(t, dir, p, "content of "+p)
		writeSidecarFor(t, payload, "content of "+p)
	}
	assert.NoError(t, VerifyBundle(b))

	// Remove one sidecar; the whole bundle must fail the gate.
	require.NoError(t, os.Remove(filepath.Join(dir, "BAG_1.sls"+model.HashExt)))
	err := VerifyBundle(b)
	require.Error(t, err)
	assert.True(t, IsIntegrity(err))
}

func TestWriteChecksumRoundTrip(t *testing.T) {
	dir := t.TempDir()
	payload := writePayload(t, dir, "file_9934.ready", "renamed artifact")

	require.NoError(t, WriteChecksum(payload))
	assert.NoError(t, Verify(payload, payload+model.HashExt))
}

func TestWriteErrorSidecar(t *testing.T) {
	dir := t.TempDir()
	sidecar := model.ErrorSidecar{
		Details: "validation failed",
		ImportMessages: []model.Finding{
			{Line: 3, Message: "Total read amount is 2, does not equal total amount field value: 3"},
		},
	}

	require.NoError(t, WriteErrorSidecar(dir, "BAG_1", sidecar))

	data, err := os.ReadFile(filepath.Join(dir, "BAG_1"+model.ErrorExt))
	require.NoError(t, err)

	var got model.ErrorSidecar
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sidecar.Details, got.Details)
	require.Len(t, got.ImportMessages, 1)
	assert.Equal(t, 3, got.ImportMessages[0].Line)
}
