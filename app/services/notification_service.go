// Package services provides external service integrations such as WhatsApp messaging, domain events and statement storage
package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/cotizabot/cotizabot/utils"
)

// NotificationKind selects the message template sent to a broker or lead
type NotificationKind string

const (
	NotificationLeadAssigned       NotificationKind = "lead_assigned"
	NotificationAccountOverdue     NotificationKind = "account_overdue"
	NotificationAccountSuspended   NotificationKind = "account_suspended"
	NotificationAccountReactivated NotificationKind = "account_reactivated"
)

// NotificationService dispatches templated notifications to a phone number
type NotificationService interface {
	Notify(ctx context.Context, recipient string, kind NotificationKind, payload map[string]string) error
}

// MessageProvider delivers a plain text message to a phone number
type MessageProvider interface {
	SendText(ctx context.Context, to, body string) error
}

var notificationTemplates = map[NotificationKind]*template.Template{
	NotificationLeadAssigned: template.Must(template.New(string(NotificationLeadAssigned)).Parse(
		"New lead assigned: {{.lead_name}} ({{.lead_phone}}). Vehicle: {{.vehicle}}. Please make first contact before {{.first_contact_deadline}}.")),
	NotificationAccountOverdue: template.Must(template.New(string(NotificationAccountOverdue)).Parse(
		"Your account {{.account_number}} is overdue with a balance of {{.balance}}. Pay before {{.grace_period_end}} to avoid suspension.")),
	NotificationAccountSuspended: template.Must(template.New(string(NotificationAccountSuspended)).Parse(
		"Your account {{.account_number}} has been suspended for non-payment. Outstanding balance: {{.balance}}.")),
	NotificationAccountReactivated: template.Must(template.New(string(NotificationAccountReactivated)).Parse(
		"Payment received. Your account {{.account_number}} is active again.")),
}

// RenderNotification renders the text of a notification kind. Missing payload keys render as "<no value>".
func RenderNotification(kind NotificationKind, payload map[string]string) (string, error) {
	tmpl, ok := notificationTemplates[kind]
	if !ok {
		return "", fmt.Errorf("unknown notification kind: %s", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", fmt.Errorf("failed to render %s notification: %w", kind, err)
	}
	return buf.String(), nil
}

// NotificationServiceImpl implements NotificationService on top of a MessageProvider
type NotificationServiceImpl struct {
	provider MessageProvider
}

// NewNotificationService creates a new notification service
func NewNotificationService(provider MessageProvider) NotificationService {
	return &NotificationServiceImpl{provider: provider}
}

// Notify renders the template for kind and sends it through the provider
func (s *NotificationServiceImpl) Notify(ctx context.Context, recipient string, kind NotificationKind, payload map[string]string) error {
	if s.provider == nil {
		return fmt.Errorf("message provider not configured")
	}
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("notification %s has no recipient", kind)
	}

	body, err := RenderNotification(kind, payload)
	if err != nil {
		return err
	}

	return s.provider.SendText(ctx, recipient, body)
}

// AsyncNotifier sends notifications in the background so callers never wait on the network.
// Failures are logged and dropped.
type AsyncNotifier struct {
	next    NotificationService
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewAsyncNotifier wraps next with fire-and-forget delivery bounded by timeout
func NewAsyncNotifier(next NotificationService, timeout time.Duration, logger *slog.Logger) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AsyncNotifier{
		next:    next,
		timeout: timeout,
		logger:  logger,
	}
}

// Notify schedules delivery and returns immediately. The caller's cancellation does not abort delivery.
func (n *AsyncNotifier) Notify(ctx context.Context, recipient string, kind NotificationKind, payload map[string]string) error {
	sendCtx := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(sendCtx, n.timeout)
		defer cancel()

		if err := n.next.Notify(ctx, recipient, kind, payload); err != nil {
			n.logger.Error("notification delivery failed",
				"kind", kind,
				"recipient", recipient,
				"error", err,
			)
			return
		}
		n.logger.Debug("notification delivered", "kind", kind, "recipient", recipient)
	}()

	return nil
}

// Wait blocks until all in-flight notifications finished
func (n *AsyncNotifier) Wait() {
	n.wg.Wait()
}

// SentMessage is a message captured by MockMessageProvider
type SentMessage struct {
	To     string
	Body   string
	SentAt time.Time
}

// MockMessageProvider records messages instead of sending them
type MockMessageProvider struct {
	mu     sync.Mutex
	sent   []SentMessage
	logger *slog.Logger
	// Err, when set, is returned by every send.
	Err error
}

// NewMockMessageProvider creates a provider that keeps messages in memory
func NewMockMessageProvider(logger *slog.Logger) *MockMessageProvider {
	return &MockMessageProvider{logger: logger}
}

func (p *MockMessageProvider) SendText(ctx context.Context, to, body string) error {
	if p.Err != nil {
		return p.Err
	}

	p.mu.Lock()
	p.sent = append(p.sent, SentMessage{To: to, Body: body, SentAt: utils.UTCNow()})
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info("mock message sent", "to", to, "body", body)
	}
	return nil
}

// Sent returns a copy of the captured messages
func (p *MockMessageProvider) Sent() []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SentMessage, len(p.sent))
	copy(out, p.sent)
	return out
}
