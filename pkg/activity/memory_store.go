package activity

import (
	"context"
	"sort"
	"sync"
)

// MemoryRecorder implements Recorder in memory.
// Thread-safe via RWMutex.
type MemoryRecorder struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Append(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRecorder) ListByContract(ctx context.Context, tenantID, contractID string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.ContractID == contractID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
