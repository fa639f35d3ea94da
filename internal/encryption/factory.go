package encryption

import (
	"errors"
	"fmt"

	"claims-go/internal/archive"
	"claims-go/internal/config"
)

// NewEncryptorFromConfig returns the snapshot encryptor for cfg. The age key
// files need not exist yet; keys setup creates them.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (archive.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, errors.New("age snapshot keys need public_key_path and private_key_path")
		}
		if cfg.PublicKeyPath == cfg.PrivateKeyPath {
			return nil, fmt.Errorf("public and private snapshot keys share the path %s", cfg.PublicKeyPath)
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot encryption type: %q", cfg.Type)
	}
}
