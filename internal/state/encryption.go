package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EncryptionKeyEnvVar is the environment variable for the state encryption key.
	EncryptionKeyEnvVar = "STAGEHAND_STATE_ENCRYPTION_KEY"

	// Header line on encrypted state files. The trailing version marks the
	// encryption format, not the state schema; bump it if the cipher or
	// layout ever changes.
	encryptedHeaderPrefix  = "# STAGEHAND_ENCRYPTED_STATE"
	encryptedFormatVersion = 1
)

func encryptedHeader() string {
	return fmt.Sprintf("%s v%d\n", encryptedHeaderPrefix, encryptedFormatVersion)
}

// EncryptState encrypts state content using AES-256-GCM with a key from the
// environment. Returns the content as-is when no key is configured.
func EncryptState(content []byte) ([]byte, error) {
	key := getEncryptionKey()
	if key == nil {
		return content, nil
	}

	gcm, err := stateCipher(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, content, nil)
	return []byte(encryptedHeader() + base64.StdEncoding.EncodeToString(sealed) + "\n"), nil
}

// DecryptState decrypts state content if it carries the encryption header.
// Unencrypted content passes through.
func DecryptState(content []byte) ([]byte, error) {
	if !IsEncrypted(content) {
		return content, nil
	}

	key := getEncryptionKey()
	if key == nil {
		return nil, fmt.Errorf("state file is encrypted but %s is not set", EncryptionKeyEnvVar)
	}

	header, encoded, ok := strings.Cut(string(content), "\n")
	if !ok {
		return nil, fmt.Errorf("malformed encrypted state: missing body")
	}
	if version := headerVersion(header); version != encryptedFormatVersion {
		return nil, fmt.Errorf("encrypted state format v%d is not supported (expected v%d)",
			version, encryptedFormatVersion)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted state: %w", err)
	}

	gcm, err := stateCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state (wrong key?): %w", err)
	}

	return plaintext, nil
}

// IsEncrypted checks for the encryption header, any format version.
func IsEncrypted(content []byte) bool {
	return strings.HasPrefix(string(content), encryptedHeaderPrefix)
}

// headerVersion parses the format version out of the header line. Headers
// written before the version suffix existed count as v1.
func headerVersion(header string) int {
	rest := strings.TrimSpace(strings.TrimPrefix(header, encryptedHeaderPrefix))
	if rest == "" {
		return 1
	}
	var version int
	if _, err := fmt.Sscanf(rest, "v%d", &version); err != nil {
		return -1
	}
	return version
}

func stateCipher(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// getEncryptionKey returns the 32-byte AES key from the environment, or nil
// if not set. Shorter keys are zero-padded, longer ones truncated, so the
// operator can use any passphrase.
func getEncryptionKey() []byte {
	keyStr := os.Getenv(EncryptionKeyEnvVar)
	if keyStr == "" {
		return nil
	}

	key := make([]byte, 32)
	copy(key, []byte(keyStr))
	return key
}
