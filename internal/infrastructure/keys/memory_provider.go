// Package keys provides the in-memory KeyProvider used for ephemeral
// session key material. File- or HSM-backed providers live outside the
// core and satisfy the same interface.
package keys

import (
	"crypto/rand"
	"fmt"
	"sync"

	"arcrtc/internal/core/domain"
	"arcrtc/internal/core/ports"
	"arcrtc/pkg/utils"
)

type entry struct {
	value   []byte
	version int
}

// MemoryProvider is a versioned, read-mostly key store. Reads take the
// read lock; Put and Rotate serialize through the write lock.
type MemoryProvider struct {
	mu   sync.RWMutex
	keys map[domain.KeyID]entry
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{keys: make(map[domain.KeyID]entry)}
}

// Get returns a copy of the key material.
func (p *MemoryProvider) Get(id domain.KeyID) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrKeyNotFound, id)
	}
	return append([]byte(nil), e.value...), nil
}

// Put stores a new key. An existing id is a conflict; use Rotate to
// replace material.
func (p *MemoryProvider) Put(id domain.KeyID, key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.keys[id]; ok {
		return fmt.Errorf("%w: %s", domain.ErrKeyConflict, id)
	}
	p.keys[id] = entry{value: append([]byte(nil), key...), version: 1}
	return nil
}

// Rotate replaces an existing key, bumping its version.
func (p *MemoryProvider) Rotate(id domain.KeyID, key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.keys[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrKeyNotFound, id)
	}
	p.keys[id] = entry{value: append([]byte(nil), key...), version: e.version + 1}
	return nil
}

// Version returns the rotation count of a key, zero when absent.
func (p *MemoryProvider) Version(id domain.KeyID) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.keys[id].version
}

// GenerateSessionKeys provisions random master key material for a session
// in the provider, for deployments where keys are issued server-side
// rather than derived from an ECDH exchange. keyLen is 16 or 32 depending
// on the suite.
func GenerateSessionKeys(kp ports.KeyProvider, sessionID domain.SessionID, keyLen int) (domain.KeyID, domain.KeyID, error) {
	masterKey := make([]byte, keyLen)
	if _, err := rand.Read(masterKey); err != nil {
		return "", "", err
	}
	masterSalt := make([]byte, 14)
	if _, err := rand.Read(masterSalt); err != nil {
		return "", "", err
	}

	keyID := domain.KeyID(utils.MasterKeyID(string(sessionID)))
	saltID := domain.KeyID(utils.MasterSaltID(string(sessionID)))
	if err := kp.Put(keyID, masterKey); err != nil {
		return "", "", err
	}
	if err := kp.Put(saltID, masterSalt); err != nil {
		return "", "", err
	}
	return keyID, saltID, nil
}
