package notifications

import "github.com/editorialops/referee-monitor/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendRunReport(result *models.RunResult) error
	SendDeadlineAlert(alert *models.DeadlineAlert) error
}
