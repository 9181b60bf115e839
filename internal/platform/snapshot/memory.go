package snapshot

import (
	"context"
	"sync"

	"github.com/carehub/carehub/internal/domain/records"
)

// MemoryAdapter holds the encoded snapshot in process memory. Saved
// snapshots are stored encoded so later mutations of the caller's value do
// not leak into the slot.
type MemoryAdapter struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{}
}

func (a *MemoryAdapter) Load(_ context.Context) (*records.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return records.DecodeSnapshot(a.data)
}

func (a *MemoryAdapter) Save(ctx context.Context, snap *records.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := records.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.data = data
	a.saves++
	a.mu.Unlock()
	return nil
}

// Saves reports how many snapshots have been written.
func (a *MemoryAdapter) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}

func (a *MemoryAdapter) String() string {
	return "memory"
}
