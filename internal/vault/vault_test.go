package vault

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

func newTestVault(t *testing.T, passphrase string) (*Vault, *store.Store) {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	v, err := New(passphrase, s)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return v, s
}

func TestSealOpen(t *testing.T) {
	v, _ := newTestVault(t, "test-passphrase")
	plaintext := []byte("hello, vault!")

	ciphertext, nonce, err := v.Seal(plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext contains plaintext")
	}
	got, err := v.Open(ciphertext, nonce)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(plaintext, got) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func TestWrongPassphrase(t *testing.T) {
	v1, s := newTestVault(t, "correct-passphrase")
	if err := v1.Set("api", "", "sk-123"); err != nil {
		t.Fatal(err)
	}
	v2, err := New("wrong-passphrase", s)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v2.Get("api"); err == nil {
		t.Fatal("expected error decrypting with wrong passphrase")
	}
}

func TestEmptyPassphrase(t *testing.T) {
	if _, err := New("", nil); !errors.Is(err, ErrNoPassphrase) {
		t.Fatalf("expected ErrNoPassphrase, got %v", err)
	}
}

func TestSetGetDelete(t *testing.T) {
	v, _ := newTestVault(t, "pass")
	if err := v.Set("anthropic", "API key", "sk-ant-1"); err != nil {
		t.Fatal(err)
	}
	if err := v.Set("anthropic", "API key", "sk-ant-2"); err != nil {
		t.Fatal(err)
	}
	got, err := v.Get("anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if got != "sk-ant-2" {
		t.Errorf("expected overwritten value, got %q", got)
	}

	list, _ := v.List()
	if len(list) != 1 || list[0].Description != "API key" {
		t.Errorf("unexpected list %+v", list)
	}

	ok, err := v.Delete("anthropic")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := v.Get("anthropic"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	v, _ := newTestVault(t, "pass")
	v.Set("openai", "", "sk-oa")

	got, err := v.Resolve("plain-key")
	if err != nil || got != "plain-key" {
		t.Errorf("literal value should pass through, got %q %v", got, err)
	}
	got, err = v.Resolve("secret:openai")
	if err != nil || got != "sk-oa" {
		t.Errorf("expected resolved secret, got %q %v", got, err)
	}
	if _, err := v.Resolve("secret:missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound, got %v", err)
	}

	var none *Vault
	if got, err := none.Resolve("literal"); err != nil || got != "literal" {
		t.Errorf("nil vault should pass literals through")
	}
	if _, err := none.Resolve("secret:x"); !errors.Is(err, ErrNoPassphrase) {
		t.Errorf("expected ErrNoPassphrase from nil vault, got %v", err)
	}
}
