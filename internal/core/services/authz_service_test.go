package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizationService_DefaultTable(t *testing.T) {
	svc := NewAuthorizationService(nil)
	agent := domain.Actor{ID: uuid.New(), Role: domain.SenderAgent}
	customer := domain.Actor{ID: uuid.New(), Role: domain.SenderCustomer}

	assert.True(t, svc.Can(agent, PermWorklogsTrack))
	assert.True(t, svc.Can(agent, PermSLARead))
	assert.True(t, svc.Can(customer, PermMessagesSend))
	assert.False(t, svc.Can(customer, PermWorklogsTrack))
	assert.False(t, svc.Can(customer, PermTicketsRead))
}

func TestAuthorizationService_UnknownRoleHasNothing(t *testing.T) {
	svc := NewAuthorizationService(nil)

	assert.False(t, svc.Can(domain.Actor{Role: "robot"}, PermTicketsRead))
	assert.Empty(t, svc.Permissions("robot"))
}

func TestAuthorizationService_CustomTable(t *testing.T) {
	svc := NewAuthorizationService(map[domain.SenderType][]string{
		domain.SenderAgent: {PermTicketsRead},
	})
	agent := domain.Actor{Role: domain.SenderAgent}

	require.True(t, svc.Can(agent, PermTicketsRead))
	assert.False(t, svc.Can(agent, PermTicketsAssign))
	assert.Equal(t, []string{PermTicketsRead}, svc.Permissions(domain.SenderAgent))
}
