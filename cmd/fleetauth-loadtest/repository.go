package main

import (
	"context"
	"sync"

	fleetAuth "github.com/MrEthical07/fleetAuth"
)

// memoryRepository is an in-process principal store for load runs.
type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*fleetAuth.Principal
	byIdent map[string]string
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		byID:    make(map[string]*fleetAuth.Principal),
		byIdent: make(map[string]string),
	}
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (*fleetAuth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepository) FindByIdentifier(ctx context.Context, identifier string) (*fleetAuth.Principal, error) {
	r.mu.RLock()
	id, ok := r.byIdent[identifier]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.FindByID(ctx, id)
}

func (r *memoryRepository) Save(_ context.Context, p *fleetAuth.Principal) error {
	cp := *p
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[cp.ID] = &cp
	for _, ident := range cp.Identifiers() {
		r.byIdent[ident] = cp.ID
	}
	return nil
}
