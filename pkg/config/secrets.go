package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// On-disk layout of the vault: [salt][nonce][AES-256-GCM ciphertext+tag].
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	gcmTagSize      = 16
	scryptN         = 1 << 15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32
)

var errCorruptVault = errors.New("secrets file is corrupted or invalid format (too small)")

// vault holds the provider keys unlocked for this process.
type vault struct {
	mu     sync.RWMutex
	values map[string]string
}

//nolint:gochecknoglobals // one unlocked vault per process
var unlocked vault

// SetDecryptedSecrets replaces the in-memory secrets. nil clears them.
func SetDecryptedSecrets(secrets map[string]string) {
	unlocked.mu.Lock()
	unlocked.values = secrets
	unlocked.mu.Unlock()
}

// GetSecret looks name up in the unlocked vault first, then the environment.
func GetSecret(name string) (string, error) {
	unlocked.mu.RLock()
	value := unlocked.values[name]
	unlocked.mu.RUnlock()
	if value != "" {
		return value, nil
	}
	if value = os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// GetDecryptedSecretNames returns the sorted names held in memory, never values.
func GetDecryptedSecretNames() []string {
	unlocked.mu.RLock()
	defer unlocked.mu.RUnlock()
	return slices.Sorted(maps.Keys(unlocked.values))
}

// SetSecret stores one secret in memory. Call SaveSecretsToFile to persist it.
func SetSecret(name, value string) error {
	unlocked.mu.Lock()
	defer unlocked.mu.Unlock()
	if unlocked.values == nil {
		unlocked.values = make(map[string]string)
	}
	unlocked.values[name] = value
	return nil
}

// DeleteSecret drops one secret from memory.
func DeleteSecret(name string) error {
	unlocked.mu.Lock()
	delete(unlocked.values, name)
	unlocked.mu.Unlock()
	return nil
}

// SaveSecretsToFile re-encrypts the in-memory secrets under workDir.
func SaveSecretsToFile(workDir, password string) error {
	unlocked.mu.RLock()
	snapshot := maps.Clone(unlocked.values)
	unlocked.mu.RUnlock()
	if snapshot == nil {
		snapshot = map[string]string{}
	}
	return EncryptSecretsFile(workDir, password, snapshot)
}

// SecretsPath returns the location of the encrypted secrets file under workDir.
func SecretsPath(workDir string) string {
	return filepath.Join(workDir, secretsFileName)
}

// SecretsFileExists reports whether workDir holds a secrets file.
func SecretsFileExists(workDir string) bool {
	_, err := os.Stat(SecretsPath(workDir))
	return err == nil
}

// LoadSecrets decrypts the secrets file under workDir into memory.
// A missing file is not an error; keys then come from the environment.
func LoadSecrets(workDir, password string) error {
	if !SecretsFileExists(workDir) {
		return nil
	}
	secrets, err := DecryptSecretsFile(workDir, password)
	if err != nil {
		return err
	}
	SetDecryptedSecrets(secrets)
	LogInfo("loaded %d secrets from %s", len(secrets), SecretsPath(workDir))
	return nil
}

// EncryptSecretsFile writes secrets to workDir with 0600 permissions under a
// fresh salt and nonce.
func EncryptSecretsFile(workDir, password string, secrets map[string]string) error {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer clear(plaintext)

	header := make([]byte, saltSize+nonceSize)
	if _, err := rand.Read(header); err != nil {
		return fmt.Errorf("failed to generate salt and nonce: %w", err)
	}
	aead, err := newAEAD(password, header[:saltSize])
	if err != nil {
		return err
	}
	data := aead.Seal(header, header[saltSize:], plaintext, nil)

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	if err := os.WriteFile(SecretsPath(workDir), data, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and decrypts the secrets file under workDir. Loose
// permissions are tightened to 0600 before reading.
func DecryptSecretsFile(workDir, password string) (map[string]string, error) {
	path := SecretsPath(workDir)
	if err := tightenPermissions(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(data) < saltSize+nonceSize+gcmTagSize {
		return nil, errCorruptVault
	}

	aead, err := newAEAD(password, data[:saltSize])
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, data[saltSize:saltSize+nonceSize], data[saltSize+nonceSize:], nil)
	if err != nil {
		return nil, errors.New("decryption failed (wrong password or corrupted file)")
	}
	defer clear(plaintext)

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}

// newAEAD derives the AES-256 key from password and salt with scrypt. The
// derived key is wiped once the cipher has been keyed.
func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	pw := []byte(password)
	defer clear(pw)

	key, err := scrypt.Key(pw, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

func tightenPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		logger.Warn("secrets file has permissions %04o, resetting to 0600", perm)
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix file permissions: %w", err)
		}
	}
	return nil
}
