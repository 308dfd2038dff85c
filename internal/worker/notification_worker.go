package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/lead-service/internal/events"
	"github.com/spec-kit/lead-service/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StopNotificationWorker drains pending notifications, giving up after timeout.
func StopNotificationWorker(dispatcher events.Dispatcher, timeout time.Duration, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := dispatcher.Close(ctx); err != nil {
		logger.Warn("notification queue not drained before shutdown", zap.Error(err))
		return
	}
	logger.Info("notification queue drained")
}
