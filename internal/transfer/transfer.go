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

// Package transfer exchanges export artifacts with machine-owner backends
// over SFTP. Not-found answers are non-fatal throughout: a missing remote
// file or directory yields an empty result, not an error.
package transfer

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/nordvend/pant/config"
)

// SecureTransfer is the file-exchange surface the export and reimport
// flows consume.
type SecureTransfer interface {
	Get(remotePath, localPath string) error
	Put(localPath, remotePath string) error
	List(remoteDir string) ([]string, error)
	Remove(remotePath string) error
	Close() error
}

// SftpTransfer implements SecureTransfer on pkg/sftp.
type SftpTransfer struct {
	conn   *ssh.Client
	client *sftp.Client
}

// Connect dials the configured SFTP endpoint using private-key auth.
func Connect(cfg config.SftpConfig) (*SftpTransfer, error) {
	key, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading private key %s", cfg.PrivateKeyPath)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Host keys are managed out of band on the exchange hosts.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "starting sftp subsystem")
	}

	return &SftpTransfer{conn: conn, client: client}, nil
}

// Get downloads remotePath into localPath. A missing remote file is not an
// error; the local file is simply not created.
func (t *SftpTransfer) Get(remotePath, localPath string) error {
	src, err := t.client.Open(remotePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "opening remote %s", remotePath)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return errors.Wrapf(err, "creating %s", localPath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, "downloading %s", remotePath)
	}
	return dst.Close()
}

func (t *SftpTransfer) Put(localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", localPath)
	}
	defer src.Close()

	dst, err := t.client.Create(remotePath)
	if err != nil {
		return errors.Wrapf(err, "creating remote %s", remotePath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, "uploading %s", remotePath)
	}
	return dst.Close()
}

// List names the files in remoteDir. A missing directory yields an empty
// list.
func (t *SftpTransfer) List(remoteDir string) ([]string, error) {
	infos, err := t.client.ReadDir(remoteDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing remote %s", remoteDir)
	}

	var names []string
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

// Remove deletes remotePath; already gone is fine.
func (t *SftpTransfer) Remove(remotePath string) error {
	err := t.client.Remove(remotePath)
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing remote %s", remotePath)
}

func (t *SftpTransfer) Close() error {
	if err := t.client.Close(); err != nil {
		t.conn.Close()
		return err
	}
	return t.conn.Close()
}
