package domain

import "github.com/google/uuid"

// Actor is the authenticated caller of a gateway operation, taken from its
// bearer token.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role SenderType
}

// IsStaff reports whether the actor works tickets.
func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}

// Viewer returns the actor's presence identity.
func (a Actor) Viewer() Viewer {
	return Viewer{UserID: a.ID.String(), UserName: a.Name}
}
