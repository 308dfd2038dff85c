package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/lead-service/internal/config"
	"github.com/spec-kit/lead-service/internal/events"
	"github.com/spec-kit/lead-service/internal/mail"
	"github.com/spec-kit/lead-service/internal/observability"
)

// Notification recipient kinds and outcomes reported to metrics.
const (
	recipientProspect = "prospect"
	recipientAdmin    = "admin"

	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     mail.Sender
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. A nil sender disables email delivery.
func NewNotificationService(dispatcher events.Dispatcher, sender mail.Sender, logger *zap.Logger, metrics *observability.Metrics, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventLeadCreated, n.handleLeadCreated)
	n.dispatcher.Subscribe(events.EventLeadStateChanged, n.handleLeadStateChanged)
}

// handleLeadCreated emails the prospect and the admin. Each send is independent
// and failures are logged, never returned.
func (n *NotificationService) handleLeadCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.LeadCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.logger.Info("LeadCreated", zap.String("lead_id", event.LeadID))

	summary := mail.LeadSummary{
		LeadID:    event.LeadID,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		CreatedAt: payload.CreatedAt,
	}

	subject, body, err := mail.ProspectEmail(summary)
	n.deliver(ctx, event, recipientProspect, payload.Email, subject, body, err)

	subject, body, err = mail.AdminEmail(summary)
	n.deliver(ctx, event, recipientAdmin, n.cfg.AdminEmail, subject, body, err)
	return nil
}

func (n *NotificationService) handleLeadStateChanged(_ context.Context, event events.Event) error {
	n.logger.Info("LeadStateChanged", zap.String("lead_id", event.LeadID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event, recipient, to, subject, body string, renderErr error) {
	fields := []zap.Field{
		zap.String("lead_id", event.LeadID),
		zap.String("recipient", recipient),
	}

	if n.sender == nil {
		n.logger.Warn("email not configured; skipping notification", fields...)
		n.metrics.RecordNotification(recipient, outcomeSkipped)
		return
	}
	if strings.TrimSpace(to) == "" {
		n.logger.Warn("no recipient address; skipping notification", fields...)
		n.metrics.RecordNotification(recipient, outcomeSkipped)
		return
	}
	if renderErr != nil {
		n.logger.Error("failed to render notification", append(fields, zap.Error(renderErr))...)
		n.metrics.RecordNotification(recipient, outcomeFailed)
		return
	}

	if err := n.sender.Send(ctx, to, subject, body); err != nil {
		n.logger.Error("failed to send notification", append(fields, zap.Error(err))...)
		n.metrics.RecordNotification(recipient, outcomeFailed)
		return
	}
	n.logger.Debug("notification sent", fields...)
	n.metrics.RecordNotification(recipient, outcomeSent)
}
