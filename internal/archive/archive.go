// Package archive exports and restores encrypted snapshots of a claims
// backend. A snapshot is a YAML document, zstd-compressed, age-encrypted and
// stored in a Vault under a timestamped name.
package archive

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrSnapshotNotFound is returned by vaults for unknown snapshot names.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrBackendNotEmpty is returned when restoring into a backend that
	// already holds claims.
	ErrBackendNotEmpty = errors.New("restore target already contains claims")
)

// Vault stores snapshot blobs. Reads and writes are streamed so a snapshot
// is never held in memory by the pipeline itself.
type Vault interface {
	// Name identifies the vault in config and logs.
	Name() string

	// PutSnapshot stores the content read from r under name, replacing any
	// existing snapshot of the same name.
	PutSnapshot(ctx context.Context, name string, r io.Reader) error

	// GetSnapshot writes the named snapshot to w.
	// Returns ErrSnapshotNotFound if it does not exist.
	GetSnapshot(ctx context.Context, name string, w io.Writer) error

	// ListSnapshots returns stored snapshot names in ascending order, which
	// is also chronological order.
	ListSnapshots(ctx context.Context) ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}

// Encryptor handles encryption of snapshots and unlocking for decryption.
// Encryption uses the public key only; decryption needs the passphrase that
// protects the private key.
type Encryptor interface {
	// Setup performs one-time key generation. Called by `claims keys setup`.
	Setup(passphrase string) error

	// NewWriter returns a writer that encrypts everything written to it into
	// w. Close must be called to flush the final block.
	NewWriter(w io.Writer) (io.WriteCloser, error)

	// Unlock decrypts the private key using the passphrase.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (Decryptor, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// Decryptor holds an unlocked private key in memory for the duration of a
// restore. It is never written to disk.
type Decryptor interface {
	// NewReader returns a reader yielding the plaintext of r.
	NewReader(r io.Reader) (io.Reader, error)
}
