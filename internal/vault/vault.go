// Package vault keeps named secrets encrypted at rest in the store and
// resolves "secret:<name>" references in configuration values.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/store"
	"golang.org/x/crypto/argon2"
)

// RefPrefix marks a config value that names a vault secret.
const RefPrefix = "secret:"

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoPassphrase   = errors.New("vault passphrase not configured")
)

// Vault seals values with AES-256-GCM under a key derived from the
// passphrase with Argon2id.
type Vault struct {
	key   [32]byte
	store *store.Store
}

// New derives the key from passphrase. The salt is the passphrase's
// SHA-256, so the same passphrase yields the same key across restarts.
func New(passphrase string, s *store.Store) (*Vault, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	salt := sha256.Sum256([]byte(passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], 1, 64*1024, 4, 32)

	v := &Vault{store: s}
	copy(v.key[:], key)
	return v, nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with a random nonce.
func (v *Vault) Seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := v.gcm()
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func (v *Vault) Open(ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Set stores value under name, replacing any previous value.
func (v *Vault) Set(name, description, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("secret name is required")
	}
	ciphertext, nonce, err := v.Seal([]byte(value))
	if err != nil {
		return err
	}
	return v.store.SaveSecret(&store.Secret{
		Name:        name,
		Description: description,
		Value:       ciphertext,
		Nonce:       nonce,
	})
}

func (v *Vault) Get(name string) (string, error) {
	sec, err := v.store.GetSecret(name)
	if err != nil {
		return "", err
	}
	if sec == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	plain, err := v.Open(sec.Value, sec.Nonce)
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", name, err)
	}
	return string(plain), nil
}

// List returns secret metadata. Values stay sealed.
func (v *Vault) List() ([]store.Secret, error) {
	return v.store.ListSecrets()
}

func (v *Vault) Delete(name string) (bool, error) {
	return v.store.DeleteSecret(name)
}

// Resolve returns value unchanged unless it is a "secret:<name>"
// reference, in which case the named secret is decrypted.
func (v *Vault) Resolve(value string) (string, error) {
	name, ok := strings.CutPrefix(value, RefPrefix)
	if !ok {
		return value, nil
	}
	if v == nil {
		return "", fmt.Errorf("resolve %s: %w", value, ErrNoPassphrase)
	}
	return v.Get(strings.TrimSpace(name))
}
