// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// SnippetStore materialises cloud-init user data under the snippets volume
// shared with the hypervisor nodes. The write refuses to overwrite and is
// read back before use: the volume is a network mount, and a VM created
// against a missing or stale snippet boots silently misconfigured.
type SnippetStore struct {
	dir string
	// volumeID is the hypervisor storage carrying the snippets, used to
	// build the cicustom directive, e.g. "local".
	volumeID string
}

// NewSnippetStore returns a store writing under dir.
func NewSnippetStore(dir, volumeID string) *SnippetStore {
	return &SnippetStore{dir: dir, volumeID: volumeID}
}

// Path returns the filesystem path of an instance's snippet.
func (s *SnippetStore) Path(instanceID id.InstanceID) string {
	return filepath.Join(s.dir, instanceID.String()+".yaml")
}

// VolumeRef returns the hypervisor-side reference of an instance's
// snippet, suitable for the cicustom VM option.
func (s *SnippetStore) VolumeRef(instanceID id.InstanceID) string {
	return fmt.Sprintf("user=%s:snippets/%s.yaml", s.volumeID, instanceID.String())
}

// Write materialises the snippet. An existing file is an error, never
// overwritten; after writing, the content is read back to verify the mount
// actually persisted it.
func (s *SnippetStore) Write(instanceID id.InstanceID, content []byte) error {
	path := s.Path(instanceID)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("could not create snippet %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("could not write snippet %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("could not close snippet %s: %w", path, err)
	}

	written, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(written, content) {
		_ = os.Remove(path)
		return fmt.Errorf("snippet %s did not persist to the shared volume", path)
	}
	return nil
}

// Remove deletes the snippet; a missing file is not an error.
func (s *SnippetStore) Remove(instanceID id.InstanceID) error {
	err := os.Remove(s.Path(instanceID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove snippet: %w", err)
	}
	return nil
}
