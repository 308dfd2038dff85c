package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/spec-kit/lead-service/internal/domain"
	"github.com/spec-kit/lead-service/internal/events"
	"github.com/spec-kit/lead-service/internal/repository"
)

type mockLeadRepo struct {
	mock.Mock
}

func (m *mockLeadRepo) Insert(ctx context.Context, lead *domain.Lead) error {
	return m.Called(ctx, lead).Error(0)
}

func (m *mockLeadRepo) List(ctx context.Context, filter repository.LeadFilter) ([]domain.Lead, int, error) {
	args := m.Called(ctx, filter)
	leads, _ := args.Get(0).([]domain.Lead)
	return leads, args.Int(1), args.Error(2)
}

func (m *mockLeadRepo) GetByID(ctx context.Context, id string) (*domain.Lead, error) {
	args := m.Called(ctx, id)
	lead, _ := args.Get(0).(*domain.Lead)
	return lead, args.Error(1)
}

func (m *mockLeadRepo) UpdateState(ctx context.Context, id string, state domain.LeadState, allowedFrom []domain.LeadState, at time.Time) (*domain.Lead, error) {
	args := m.Called(ctx, id, state, allowedFrom, at)
	lead, _ := args.Get(0).(*domain.Lead)
	return lead, args.Error(1)
}

type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	return m.Called(ctx, key, data, contentType, metadata).Error(0)
}

func (m *mockBlobStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, toEmail, subject, htmlContent string) error {
	return m.Called(ctx, toEmail, subject, htmlContent).Error(0)
}

// recordingDispatcher captures published events without running handlers.
type recordingDispatcher struct {
	mu        sync.Mutex
	published []events.Event
	err       error
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.published = append(d.published, event)
	return d.err
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) Close(context.Context) error { return nil }

func (d *recordingDispatcher) snapshot() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event(nil), d.published...)
}
