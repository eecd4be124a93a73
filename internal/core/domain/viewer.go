package domain

// Viewer is an agent currently looking at a ticket.
type Viewer struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
}

// UniqueViewers collapses viewers to one entry per UserID, keeping the
// first occurrence and the input order.
func UniqueViewers(viewers []Viewer) []Viewer {
	seen := make(map[string]struct{}, len(viewers))
	out := make([]Viewer, 0, len(viewers))
	for _, v := range viewers {
		if v.UserID == "" {
			continue
		}
		if _, ok := seen[v.UserID]; ok {
			continue
		}
		seen[v.UserID] = struct{}{}
		out = append(out, v)
	}
	return out
}
