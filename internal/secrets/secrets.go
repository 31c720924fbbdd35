// Package secrets decrypts the API credentials held in the settings store.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/egemenkeskn/trader-server/internal/models"
)

// Decrypter turns stored ciphertext back into plaintext.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// AESGCM encrypts with AES-256-GCM under sha256(masterKey).
// Ciphertext is base64(nonce || sealed).
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM returns models.ErrConfiguration when masterKey is empty.
func NewAESGCM(masterKey string) (*AESGCM, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("%w: master key is not set", models.ErrConfiguration)
	}
	key := sha256.Sum256([]byte(masterKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

// Encrypt is used when provisioning accounts.
func (a *AESGCM) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := a.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (a *AESGCM) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	ns := a.aead.NonceSize()
	if len(raw) < ns {
		return "", errors.New("ciphertext too short")
	}
	plain, err := a.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// Sanitize keeps printable ASCII only and trims surrounding whitespace.
func Sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r > 0x20 && r < 0x7f {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// DecryptCredential decrypts both halves of an account's API key pair.
func DecryptCredential(d Decrypter, settings *models.AccountSettings) (models.Credential, error) {
	if settings.EncryptedAPIKey == "" || settings.EncryptedAPISecret == "" {
		return models.Credential{}, models.ErrCredentialsMissing
	}
	key, err := d.Decrypt(settings.EncryptedAPIKey)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: api key: %v", models.ErrCredentialsMissing, err)
	}
	secret, err := d.Decrypt(settings.EncryptedAPISecret)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: api secret: %v", models.ErrCredentialsMissing, err)
	}
	cred := models.Credential{APIKey: Sanitize(key), APISecret: Sanitize(secret)}
	if cred.APIKey == "" || cred.APISecret == "" {
		return models.Credential{}, models.ErrCredentialsMissing
	}
	return cred, nil
}
