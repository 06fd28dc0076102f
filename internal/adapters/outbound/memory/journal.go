package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

var _ outbound.TransactionJournal = (*Journal)(nil)

// Journal keeps submitted transactions in memory, in submission order.
type Journal struct {
	mu      sync.RWMutex
	entries []outbound.JournalEntry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Record(_ context.Context, entry outbound.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *Journal) ListByAction(_ context.Context, actionID uuid.UUID) ([]outbound.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []outbound.JournalEntry
	for _, e := range j.entries {
		if e.ActionID == actionID {
			out = append(out, e)
		}
	}
	return out, nil
}
