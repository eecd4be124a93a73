package services

import (
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// Permissions checked by the gateway use cases.
const (
	PermTicketsCreate       = "tickets:create"
	PermTicketsRead         = "tickets:read"
	PermTicketsUpdateStatus = "tickets:update:status"
	PermTicketsAssign       = "tickets:assign"
	PermMessagesSend        = "messages:send"
	PermPresenceView        = "presence:view"
	PermWorklogsTrack       = "worklogs:track"
	PermSLARead             = "sla:read"
)

var staffPermissions = []string{
	PermTicketsCreate,
	PermTicketsRead,
	PermTicketsUpdateStatus,
	PermTicketsAssign,
	PermMessagesSend,
	PermPresenceView,
	PermWorklogsTrack,
	PermSLARead,
}

// defaultRolePermissions is the role table used when none is configured.
var defaultRolePermissions = map[domain.SenderType][]string{
	domain.SenderAdmin:    staffPermissions,
	domain.SenderAgent:    staffPermissions,
	domain.SenderCustomer: {PermTicketsCreate, PermMessagesSend},
}

// AuthorizationService implements role based access control over the roles
// carried in bearer tokens.
type AuthorizationService struct {
	roles map[domain.SenderType]map[string]struct{}
}

// Ensure implementation matches the interface.
var _ ports.AuthorizationService = (*AuthorizationService)(nil)

// NewAuthorizationService builds the service from a role table. A nil table
// selects the default one.
func NewAuthorizationService(table map[domain.SenderType][]string) *AuthorizationService {
	if table == nil {
		table = defaultRolePermissions
	}
	roles := make(map[domain.SenderType]map[string]struct{}, len(table))
	for role, perms := range table {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		roles[role] = set
	}
	return &AuthorizationService{roles: roles}
}

// Can checks if the actor's role grants a permission.
func (s *AuthorizationService) Can(actor domain.Actor, permission string) bool {
	_, ok := s.roles[actor.Role][permission]
	return ok
}

// Permissions lists what a role may do, in no particular order.
func (s *AuthorizationService) Permissions(role domain.SenderType) []string {
	perms := make([]string, 0, len(s.roles[role]))
	for p := range s.roles[role] {
		perms = append(perms, p)
	}
	return perms
}
