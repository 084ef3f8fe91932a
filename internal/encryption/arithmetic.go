// Package encryption abstracts the encrypted-computation capability the
// oracle delegates to. Record payloads are opaque Ciphertext handles; the
// engine combines them without ever observing plaintext. A real deployment
// plugs in a homomorphic backend; the transparent stand-in in this package
// backs tests and development.
package encryption

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	dErrors "dataledger/pkg/domain-errors"
)

// Ciphertext is an opaque handle to an encrypted value. The engine never
// branches on anything derived from its contents.
type Ciphertext string

// Arithmetic is the encrypted-computation capability. All operations return
// new handles; inputs are never mutated.
type Arithmetic interface {
	// Zero returns a handle to an encrypted zero, the accumulator seed.
	Zero(ctx context.Context) (Ciphertext, error)
	// Add returns a handle to the encrypted sum of two handles.
	Add(ctx context.Context, a, b Ciphertext) (Ciphertext, error)
	// AddPlain returns a handle to a's value plus a plaintext constant.
	// Used for encrypted counters.
	AddPlain(ctx context.Context, a Ciphertext, v uint64) (Ciphertext, error)
}

// Transparent is the stand-in backend: plain integer math behind opaque
// random handles. Handles reveal nothing about the value; the mapping lives
// only inside this backend, which also plays the decryption relayer in
// degraded deployments via Open.
type Transparent struct {
	mu     sync.RWMutex
	values map[Ciphertext]uint64
}

func NewTransparent() *Transparent {
	return &Transparent{values: make(map[Ciphertext]uint64)}
}

func (t *Transparent) newHandle(v uint64) Ciphertext {
	var nonce [16]byte
	_, _ = rand.Read(nonce[:])
	sum := sha256.Sum256(nonce[:])
	handle := Ciphertext(hex.EncodeToString(sum[:]))
	t.values[handle] = v
	return handle
}

// Seal encrypts a plaintext value. Dev and test ingress only; production
// records arrive already sealed by the external record store.
func (t *Transparent) Seal(ctx context.Context, v uint64) (Ciphertext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.newHandle(v), nil
}

func (t *Transparent) Zero(ctx context.Context) (Ciphertext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.newHandle(0), nil
}

func (t *Transparent) Add(ctx context.Context, a, b Ciphertext) (Ciphertext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	av, ok := t.values[a]
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown ciphertext handle")
	}
	bv, ok := t.values[b]
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown ciphertext handle")
	}
	return t.newHandle(av + bv), nil
}

func (t *Transparent) AddPlain(ctx context.Context, a Ciphertext, v uint64) (Ciphertext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	av, ok := t.values[a]
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown ciphertext handle")
	}
	return t.newHandle(av + v), nil
}

// Open reveals the plaintext behind a handle. Only the relayer path calls
// this; it is deliberately not part of the Arithmetic interface the oracle
// holds.
func (t *Transparent) Open(ctx context.Context, c Ciphertext) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[c]
	if !ok {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown ciphertext handle")
	}
	return v, nil
}
