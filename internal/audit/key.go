package audit

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

const keySize = 32

// LoadOrCreateKey reads the HMAC key at path, generating a fresh 32-byte key
// on first run. The key file is owner-read-only; losing it makes existing
// chain hashes unverifiable, so it must be included in appliance backups.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != keySize {
			return nil, fmt.Errorf("audit key %s: expected %d bytes, got %d", path, keySize, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read audit key: %w", err)
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate audit key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit key dir: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write audit key: %w", err)
	}
	return key, nil
}
