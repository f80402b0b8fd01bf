package submission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[uuid.UUID]Submission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions: map[uuid.UUID]Submission{},
	}
}

func (ms *MemoryStore) Create(ctx context.Context, sub *Submission) error {
	if len(sub.Items) == 0 {
		return ErrEmpty
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	_, found := ms.submissions[sub.Id]
	if found {
		return fmt.Errorf("submission %s already exists", sub.Id)
	}
	ms.submissions[sub.Id] = sub.clone()
	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Submission, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	sub, found := ms.submissions[id]
	if !found {
		return Submission{}, ErrNotFound
	}
	return sub.clone(), nil
}

func (ms *MemoryStore) List(ctx context.Context, status Status) ([]Submission, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Submission
	for _, sub := range ms.submissions {
		if status != "" && sub.Status != status {
			continue
		}
		out = append(out, sub.clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Id.String() < out[j].Id.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (ms *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, notes string) (Submission, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	sub, found := ms.submissions[id]
	if !found {
		return Submission{}, ErrNotFound
	}
	err := checkTransition(sub.Status, status)
	if err != nil {
		return Submission{}, err
	}

	sub.Status = status
	sub.Notes = notes
	sub.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	ms.submissions[id] = sub

	return sub.clone(), nil
}
