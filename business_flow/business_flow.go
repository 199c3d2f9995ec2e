package businessflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/cotizabot/cotizabot/models"
	"github.com/cotizabot/cotizabot/repository"
	"github.com/cotizabot/cotizabot/utils"
	"github.com/goccy/go-json"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client information recorded on audit entries
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
	// Actor identifies the admin or job that triggered the operation.
	Actor string `json:"actor,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SystemMetadata describes operations started by the scheduler rather than a request
func SystemMetadata(actor string) *ClientMetadata {
	return &ClientMetadata{IPAddress: "127.0.0.1", UserAgent: "scheduler", Actor: actor}
}

// auditSubject names the entities an audit entry is about
type auditSubject struct {
	BrokerID  *uint
	LeadID    *uint
	AccountID *uint
}

// createAuditLog writes an audit entry. Audit is best-effort: failures are logged and never
// returned, so they cannot roll back the state change they describe.
func createAuditLog(ctx context.Context, auditRepo repository.AuditLogRepository, logger *slog.Logger, subject auditSubject, action, description string, success bool, errorMsg *string, extra map[string]any, metadata *ClientMetadata) {
	if auditRepo == nil {
		return
	}

	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
		if metadata.Actor != "" {
			if extra == nil {
				extra = map[string]any{}
			}
			extra["actor"] = metadata.Actor
		}
	}

	audit := &models.AuditLog{
		BrokerID:     subject.BrokerID,
		LeadID:       subject.LeadID,
		AccountID:    subject.AccountID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}

	if len(extra) > 0 {
		if bs, err := json.Marshal(extra); err == nil {
			audit.Metadata = bs
		}
	}

	// Extract request ID from context if available
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		audit.RequestID = &requestID
	} else if metadata != nil && metadata.RequestID != "" {
		audit.RequestID = utils.ToPtr(metadata.RequestID)
	}

	if err := auditRepo.Save(ctx, audit); err != nil && logger != nil {
		logger.Warn("failed to write audit log", "action", action, "error", err)
	}
}

func formatDeadline(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
