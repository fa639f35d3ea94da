package encryption

import (
	"bytes"
	"fmt"
	"io"

	"claims-go/internal/archive"
)

// testHeader is prepended by TestEncryptor so ciphertext differs from
// plaintext while staying deterministic and reversible.
var testHeader = []byte("CLMENC\x00\x00")

// TestEncryptor is a deterministic encryptor for tests and local setups
// that do not need confidentiality. It requires no keys.
type TestEncryptor struct{}

var _ archive.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error { return nil }

func (e *TestEncryptor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	if _, err := w.Write(testHeader); err != nil {
		return nil, fmt.Errorf("writing test header: %w", err)
	}
	return nopCloser{w}, nil
}

func (e *TestEncryptor) Unlock(passphrase string) (archive.Decryptor, error) {
	return TestDecryptor{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// TestDecryptor strips the header added by TestEncryptor.
type TestDecryptor struct{}

var _ archive.Decryptor = TestDecryptor{}

func (TestDecryptor) NewReader(r io.Reader) (io.Reader, error) {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return nil, fmt.Errorf("invalid test encryption header")
	}
	return r, nil
}
