package collab

import "github.com/lorrc/ticket-collab/internal/core/domain"

// Presence tracks who else is viewing a ticket. The local agent is always a
// member of the set; server updates can never evict it.
type Presence struct {
	ticketID int64
	self     domain.Viewer

	others   map[string]domain.Viewer
	order    []string
	degraded bool
}

// NewPresence creates a tracker seeded with the local agent.
func NewPresence(ticketID int64, self domain.Viewer) *Presence {
	return &Presence{
		ticketID: ticketID,
		self:     self,
		others:   make(map[string]domain.Viewer),
	}
}

// Announce returns the ticket:view request for the local agent.
func (p *Presence) Announce() domain.ViewTicketPayload {
	return domain.ViewTicketPayload{TicketID: p.ticketID, Viewer: p.self}
}

// ApplyAck replaces the remote viewers with the server's current set.
func (p *Presence) ApplyAck(viewers []domain.Viewer) {
	p.others = make(map[string]domain.Viewer, len(viewers))
	p.order = p.order[:0]
	for _, v := range domain.UniqueViewers(viewers) {
		p.add(v)
	}
	p.degraded = false
}

// Join adds a viewer. Joins of the local agent or of present viewers are
// ignored.
func (p *Presence) Join(v domain.Viewer) bool {
	if _, ok := p.others[v.UserID]; ok {
		return false
	}
	return p.add(v)
}

// Leave removes a viewer. The local agent never leaves its own view.
func (p *Presence) Leave(userID string) bool {
	if userID == p.self.UserID {
		return false
	}
	if _, ok := p.others[userID]; !ok {
		return false
	}
	delete(p.others, userID)
	for i, id := range p.order {
		if id == userID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Degrade falls back to a local-only view after the channel gave up.
func (p *Presence) Degrade() {
	p.others = make(map[string]domain.Viewer)
	p.order = p.order[:0]
	p.degraded = true
}

// Degraded reports whether presence is showing only the local agent because
// the channel is down.
func (p *Presence) Degraded() bool {
	return p.degraded
}

// Contains reports whether userID is in the viewer set.
func (p *Presence) Contains(userID string) bool {
	if userID == p.self.UserID {
		return true
	}
	_, ok := p.others[userID]
	return ok
}

// Viewers returns the local agent first, then others in join order.
func (p *Presence) Viewers() []domain.Viewer {
	out := make([]domain.Viewer, 0, len(p.order)+1)
	out = append(out, p.self)
	for _, id := range p.order {
		out = append(out, p.others[id])
	}
	return out
}

func (p *Presence) add(v domain.Viewer) bool {
	if v.UserID == "" || v.UserID == p.self.UserID {
		return false
	}
	p.others[v.UserID] = v
	p.order = append(p.order, v.UserID)
	return true
}
