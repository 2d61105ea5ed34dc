package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rcliao/biobank/internal/model"
)

// Memory is a process-local ledger. Test double only: it does not outlive a process.
type Memory struct {
	mu          sync.RWMutex
	data        map[string][]byte
	unavailable bool
	rejectWrite func(key string) error
	receipts    []Receipt
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// SetAvailable toggles what IsAvailable reports.
func (m *Memory) SetAvailable(ok bool) {
	m.mu.Lock()
	m.unavailable = !ok
	m.mu.Unlock()
}

// RejectWrites installs a hook consulted before every write. A non-nil
// return fails the write with that error. Pass nil to clear.
func (m *Memory) RejectWrites(fn func(key string) error) {
	m.mu.Lock()
	m.rejectWrite = fn
	m.mu.Unlock()
}

func (m *Memory) IsAvailable(ctx context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.unavailable
}

func (m *Memory) GetData(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v := m.data[key]
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put writes directly, bypassing signing. Test setup only.
func (m *Memory) Put(key string, value []byte) {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
}

// Signer returns a write handle bound to the identity from.
func (m *Memory) Signer(from string) Writer {
	return &memoryWriter{m: m, from: from}
}

func (m *Memory) Close() error { return nil }

// Receipts returns every receipt issued so far, oldest first.
func (m *Memory) Receipts() []Receipt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Receipt(nil), m.receipts...)
}

type memoryWriter struct {
	m    *Memory
	from string
}

func (w *memoryWriter) SetData(ctx context.Context, key string, value []byte) (*Receipt, error) {
	if w.from == "" {
		return nil, model.ErrNotAuthenticated
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if w.m.rejectWrite != nil {
		if err := w.m.rejectWrite(key); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}
	w.m.data[key] = append([]byte(nil), value...)
	r := newReceipt(w.from, key, value, time.Now().UTC())
	w.m.receipts = append(w.m.receipts, *r)
	return r, nil
}
