package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockTicketRepository is a mock implementation of ports.TicketRepository
type MockTicketRepository struct {
	mock.Mock
}

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{}
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetByConversationID(ctx context.Context, conversationID uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

// MockMessageRepository is a mock implementation of ports.MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{}
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

// MockWorklogRepository is a mock implementation of ports.WorklogRepository
type MockWorklogRepository struct {
	mock.Mock
}

func NewMockWorklogRepository() *MockWorklogRepository {
	return &MockWorklogRepository{}
}

func (m *MockWorklogRepository) Create(ctx context.Context, w *domain.Worklog) (*domain.Worklog, error) {
	args := m.Called(ctx, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Worklog), args.Error(1)
}

func (m *MockWorklogRepository) GetActive(ctx context.Context, ticketID int64, agentID uuid.UUID) (*domain.Worklog, error) {
	args := m.Called(ctx, ticketID, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Worklog), args.Error(1)
}

func (m *MockWorklogRepository) Close(ctx context.Context, w *domain.Worklog) (*domain.Worklog, error) {
	args := m.Called(ctx, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Worklog), args.Error(1)
}

func (m *MockWorklogRepository) ListByTicketAndAgent(ctx context.Context, ticketID int64, agentID uuid.UUID) ([]*domain.Worklog, error) {
	args := m.Called(ctx, ticketID, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Worklog), args.Error(1)
}

// MockViewerRegistry is a mock implementation of ports.ViewerRegistry
type MockViewerRegistry struct {
	mock.Mock
}

func NewMockViewerRegistry() *MockViewerRegistry {
	return &MockViewerRegistry{}
}

func (m *MockViewerRegistry) Add(ctx context.Context, ticketID int64, connectionID string, viewer domain.Viewer) error {
	args := m.Called(ctx, ticketID, connectionID, viewer)
	return args.Error(0)
}

func (m *MockViewerRegistry) Remove(ctx context.Context, ticketID int64, connectionID string) (*domain.Viewer, error) {
	args := m.Called(ctx, ticketID, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Viewer), args.Error(1)
}

func (m *MockViewerRegistry) List(ctx context.Context, ticketID int64) ([]domain.Viewer, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Viewer), args.Error(1)
}

// MockSLAPolicySource is a mock implementation of ports.SLAPolicySource
type MockSLAPolicySource struct {
	mock.Mock
}

func NewMockSLAPolicySource() *MockSLAPolicySource {
	return &MockSLAPolicySource{}
}

func (m *MockSLAPolicySource) Policies() []domain.SLAPolicy {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.SLAPolicy)
}

// MockAuthorizationService is a mock implementation of ports.AuthorizationService
type MockAuthorizationService struct {
	mock.Mock
}

func NewMockAuthorizationService() *MockAuthorizationService {
	return &MockAuthorizationService{}
}

func (m *MockAuthorizationService) Can(actor domain.Actor, permission string) bool {
	args := m.Called(actor, permission)
	return args.Bool(0)
}

// MockTicketService is a mock implementation of ports.TicketService
type MockTicketService struct {
	mock.Mock
}

func NewMockTicketService() *MockTicketService {
	return &MockTicketService{}
}

func (m *MockTicketService) CreateTicket(ctx context.Context, params ports.CreateTicketParams) (*domain.Ticket, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketService) GetTicketDetail(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketDetail, error) {
	args := m.Called(ctx, ticketID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketDetail), args.Error(1)
}

func (m *MockTicketService) UpdateStatus(ctx context.Context, params ports.UpdateStatusParams) (*domain.Ticket, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketService) AssignTicket(ctx context.Context, params ports.AssignTicketParams) (*domain.Ticket, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketService) Shutdown() {
	m.Called()
}

// MockMessageService is a mock implementation of ports.MessageService
type MockMessageService struct {
	mock.Mock
}

func NewMockMessageService() *MockMessageService {
	return &MockMessageService{}
}

func (m *MockMessageService) SendMessage(ctx context.Context, params ports.SendMessageParams) (*domain.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

// MockPresenceService is a mock implementation of ports.PresenceService
type MockPresenceService struct {
	mock.Mock
}

func NewMockPresenceService() *MockPresenceService {
	return &MockPresenceService{}
}

func (m *MockPresenceService) View(ctx context.Context, connectionID string, ticketID int64, viewer domain.Viewer) ([]domain.Viewer, error) {
	args := m.Called(ctx, connectionID, ticketID, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Viewer), args.Error(1)
}

func (m *MockPresenceService) Leave(ctx context.Context, connectionID string, ticketID int64) error {
	args := m.Called(ctx, connectionID, ticketID)
	return args.Error(0)
}

// MockWorklogService is a mock implementation of ports.WorklogService
type MockWorklogService struct {
	mock.Mock
}

func NewMockWorklogService() *MockWorklogService {
	return &MockWorklogService{}
}

func (m *MockWorklogService) Start(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.Worklog, error) {
	args := m.Called(ctx, ticketID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Worklog), args.Error(1)
}

func (m *MockWorklogService) Stop(ctx context.Context, params ports.StopWorklogParams) (*domain.Worklog, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Worklog), args.Error(1)
}

func (m *MockWorklogService) Summary(ctx context.Context, ticketID int64, actor domain.Actor) (domain.TimerState, error) {
	args := m.Called(ctx, ticketID, actor)
	return args.Get(0).(domain.TimerState), args.Error(1)
}

func (m *MockWorklogService) StopReasons() []domain.StopReason {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.StopReason)
}

// MockSLAService is a mock implementation of ports.SLAService
type MockSLAService struct {
	mock.Mock
}

func NewMockSLAService() *MockSLAService {
	return &MockSLAService{}
}

func (m *MockSLAService) Timers(ctx context.Context, conversationID uuid.UUID, actor domain.Actor) ([]domain.SLATimer, error) {
	args := m.Called(ctx, conversationID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SLATimer), args.Error(1)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(env domain.Envelope) error {
	args := m.Called(env)
	return args.Error(0)
}

// MockTransactionManager runs the function inline without a transaction.
type MockTransactionManager struct {
	mock.Mock
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}
