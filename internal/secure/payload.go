package secure

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/awnumar/memguard"
)

// MaxPayloadSize is the largest secret version payload Secret Manager accepts.
const MaxPayloadSize = 64 * 1024

// ErrPayloadTooLarge is returned when input exceeds the size limit.
var ErrPayloadTooLarge = errors.New("payload exceeds size limit")

// Payload holds a secret payload encrypted in memory until it is sent.
// The zero value is an empty payload.
type Payload struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
	size    int
}

// NewPayload seals data into a Payload. data is wiped.
func NewPayload(data []byte) *Payload {
	size := len(data)
	if size == 0 {
		return &Payload{}
	}
	return &Payload{enclave: memguard.NewEnclave(data), size: size}
}

// ReadPayload reads r to EOF into protected memory. Reading more than limit
// bytes fails with ErrPayloadTooLarge; a non-positive limit means
// MaxPayloadSize.
func ReadPayload(r io.Reader, limit int) (*Payload, error) {
	if limit <= 0 {
		limit = MaxPayloadSize
	}
	buf, err := memguard.NewBufferFromEntireReader(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	size := buf.Size()
	if size > limit {
		buf.Destroy()
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, limit)
	}
	if size == 0 {
		buf.Destroy()
		return &Payload{}, nil
	}
	return &Payload{enclave: buf.Seal(), size: size}, nil
}

// Size returns the payload length in bytes.
func (p *Payload) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size
}

// Use decrypts the payload, passes the plaintext to fn and wipes it once fn
// returns. fn must not retain the slice.
func (p *Payload) Use(fn func(plaintext []byte) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.enclave == nil {
		return fn(nil)
	}
	locked, err := p.enclave.Open()
	if err != nil {
		return fmt.Errorf("failed to open payload: %w", err)
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Destroy drops the payload. It is safe to call more than once; afterwards
// the payload is empty.
func (p *Payload) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enclave = nil
	p.size = 0
}
