package client

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/Douniahlt/Chat-securise/internal/crypto"
)

// KeyStore holds group keys in memguard enclaves so the raw material only
// exists in plaintext pages for the duration of a seal or open call.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]*memguard.Enclave
}

func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[string]*memguard.Enclave)}
}

// Put stores key material for a group. The slice is wiped by memguard on
// enclave creation, so callers must not reuse it afterwards.
func (ks *KeyStore) Put(group string, key []byte) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[group] = memguard.NewEnclave(key)
}

func (ks *KeyStore) Has(group string) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	_, ok := ks.keys[group]
	return ok
}

// Seal encrypts plaintext with the group's key.
func (ks *KeyStore) Seal(group string, plaintext string) (string, error) {
	buf, err := ks.open(group)
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return crypto.SealMessage(buf.Bytes(), plaintext)
}

// Open decrypts a token produced by Seal with the group's key.
func (ks *KeyStore) Open(group string, token string) (string, error) {
	buf, err := ks.open(group)
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return crypto.OpenMessage(buf.Bytes(), token)
}

// WrapFor encrypts the group's key under a member candidate's public key, for
// the admin side of the key handshake.
func (ks *KeyStore) WrapFor(group string, pub *crypto.PublicKey) (string, error) {
	buf, err := ks.open(group)
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return pub.Encrypt(buf.Bytes())
}

func (ks *KeyStore) open(group string) (*memguard.LockedBuffer, error) {
	ks.mu.RLock()
	enc, ok := ks.keys[group]
	ks.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no key for group %q", group)
	}
	return enc.Open()
}

// Purge destroys all held key material.
func (ks *KeyStore) Purge() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys = make(map[string]*memguard.Enclave)
	memguard.Purge()
}
