package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/hostara/hostara/api/internal/config"
	"golang.org/x/crypto/hkdf"
)

var (
	gcm            cipher.AEAD
	once           sync.Once
	initError      error
	encryptEnabled bool
)

// Initialize sets up the encryption with the key from config
func Initialize() error {
	once.Do(func() {
		cfg := config.Get()
		if cfg.EncryptionKey == "" {
			log.Println("Warning: ENCRYPTION_KEY is not set. Backend credentials will be stored in plaintext.")
			encryptEnabled = false
			return
		}

		key := []byte(cfg.EncryptionKey)
		if len(key) != 32 {
			initError = errors.New("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
			encryptEnabled = false
			return
		}

		block, err := aes.NewCipher(key)
		if err != nil {
			initError = err
			encryptEnabled = false
			return
		}

		gcm, err = cipher.NewGCM(block)
		if err != nil {
			initError = err
			encryptEnabled = false
			return
		}

		encryptEnabled = true
		log.Println("Encryption enabled for stored backend credentials")
	})
	return initError
}

// Encrypt encrypts plaintext using AES-256-GCM
// If encryption is not enabled, returns plaintext as-is
func Encrypt(plaintext string) (string, error) {
	Initialize()
	if !encryptEnabled {
		return plaintext, nil
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts ciphertext using AES-256-GCM
// If encryption is not enabled, returns ciphertext as-is (assumes it's plaintext)
func Decrypt(ciphertext string) (string, error) {
	Initialize()
	if !encryptEnabled {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// derivedPasswordBytes yields 24-character base64url passwords, well under
// MySQL's and Redis's limits
const derivedPasswordBytes = 18

// DerivePassword derives a deterministic per-user password from the tenant
// secret and the user name, so backend passwords are reproducible without a
// lookup table.
func DerivePassword(tenantSecret, userName string) (string, error) {
	if tenantSecret == "" {
		return "", errors.New("tenant secret is empty")
	}

	reader := hkdf.New(sha256.New, []byte(tenantSecret), nil, []byte(userName))
	key := make([]byte, derivedPasswordBytes)
	if _, err := io.ReadFull(reader, key); err != nil {
		return "", fmt.Errorf("failed to derive password for %s: %w", userName, err)
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}
