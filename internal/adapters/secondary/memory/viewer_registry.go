// Package memory provides in-process adapters for single-instance gateways
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

type entry struct {
	viewer domain.Viewer
	seq    uint64
}

// ViewerRegistry keeps presence in a map. It is only correct when a single
// gateway instance serves every connection.
type ViewerRegistry struct {
	mu      sync.Mutex
	tickets map[int64]map[string]entry
	seq     uint64
}

var _ ports.ViewerRegistry = (*ViewerRegistry)(nil)

func NewViewerRegistry() *ViewerRegistry {
	return &ViewerRegistry{tickets: make(map[int64]map[string]entry)}
}

func (r *ViewerRegistry) Add(_ context.Context, ticketID int64, connectionID string, viewer domain.Viewer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.tickets[ticketID]
	if !ok {
		conns = make(map[string]entry)
		r.tickets[ticketID] = conns
	}
	if existing, ok := conns[connectionID]; ok {
		conns[connectionID] = entry{viewer: viewer, seq: existing.seq}
		return nil
	}
	r.seq++
	conns[connectionID] = entry{viewer: viewer, seq: r.seq}
	return nil
}

func (r *ViewerRegistry) Remove(_ context.Context, ticketID int64, connectionID string) (*domain.Viewer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.tickets[ticketID]
	e, ok := conns[connectionID]
	if !ok {
		return nil, nil
	}
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(r.tickets, ticketID)
	}
	v := e.viewer
	return &v, nil
}

func (r *ViewerRegistry) List(_ context.Context, ticketID int64) ([]domain.Viewer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]entry, 0, len(r.tickets[ticketID]))
	for _, e := range r.tickets[ticketID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	viewers := make([]domain.Viewer, 0, len(entries))
	for _, e := range entries {
		viewers = append(viewers, e.viewer)
	}
	return viewers, nil
}
