package encryption

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"claims-go/internal/archive"
	"claims-go/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "claims.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "claims.key"),
	})
}

// roundTrip encrypts input with e and decrypts it with d.
func roundTrip(t *testing.T, e archive.Encryptor, d archive.Decryptor, input []byte) (ciphertext, plaintext []byte) {
	t.Helper()

	var enc bytes.Buffer
	w, err := e.NewWriter(&enc)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if _, err := w.Write(input); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := d.NewReader(bytes.NewReader(enc.Bytes()))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return enc.Bytes(), out
}

func TestAgeEncryptor_Setup(t *testing.T) {
	t.Parallel()

	t.Run("configures keys", func(t *testing.T) {
		t.Parallel()
		e := newTestAgeEncryptor(t)
		if e.IsConfigured() {
			t.Fatal("IsConfigured() = true before Setup")
		}
		if err := e.Setup("test-passphrase"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if !e.IsConfigured() {
			t.Error("IsConfigured() = false after Setup")
		}
	})

	t.Run("refuses to replace existing keys", func(t *testing.T) {
		t.Parallel()
		e := newTestAgeEncryptor(t)
		if err := e.Setup("first"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if err := e.Setup("second"); err == nil {
			t.Error("second Setup() succeeded, want error")
		}
		if _, err := e.Unlock("first"); err != nil {
			t.Errorf("original key no longer unlocks: %v", err)
		}
	})

	t.Run("rejects an empty passphrase", func(t *testing.T) {
		t.Parallel()
		if err := newTestAgeEncryptor(t).Setup(""); err == nil {
			t.Error("Setup(\"\") succeeded, want error")
		}
	})
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 100000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newTestAgeEncryptor(t)
			if err := e.Setup("test-passphrase"); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			d, err := e.Unlock("test-passphrase")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}

			ciphertext, plaintext := roundTrip(t, e, d, tt.input)
			if len(tt.input) > 0 && bytes.Contains(ciphertext, tt.input) {
				t.Error("ciphertext contains the plaintext")
			}
			if !bytes.Equal(plaintext, tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", len(plaintext), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_Errors(t *testing.T) {
	t.Parallel()

	t.Run("wrong passphrase", func(t *testing.T) {
		t.Parallel()
		e := newTestAgeEncryptor(t)
		if err := e.Setup("correct-passphrase"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if _, err := e.Unlock("wrong-passphrase"); err == nil {
			t.Error("Unlock() with wrong passphrase should return error")
		}
	})

	t.Run("encrypt before setup", func(t *testing.T) {
		t.Parallel()
		if _, err := newTestAgeEncryptor(t).NewWriter(io.Discard); err == nil {
			t.Error("NewWriter() before Setup should return error")
		}
	})

	t.Run("unlock before setup", func(t *testing.T) {
		t.Parallel()
		if _, err := newTestAgeEncryptor(t).Unlock("passphrase"); err == nil {
			t.Error("Unlock() before Setup should return error")
		}
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		t.Parallel()
		e := newTestAgeEncryptor(t)
		if err := e.Setup("p"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		d, _ := e.Unlock("p")

		var enc bytes.Buffer
		w, _ := e.NewWriter(&enc)
		w.Write(bytes.Repeat([]byte("x"), 4096))
		w.Close()
		data := enc.Bytes()
		data[len(data)-1] ^= 0xff

		r, err := d.NewReader(bytes.NewReader(data))
		if err == nil {
			_, err = io.ReadAll(r)
		}
		if err == nil {
			t.Error("reading tampered ciphertext succeeded, want error")
		}
	})
}
