package services

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cotizabot/cotizabot/config"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

var discardLogger = slog.New(slog.DiscardHandler)

func TestRenderNotification(t *testing.T) {
	t.Run("LeadAssigned", func(t *testing.T) {
		body, err := RenderNotification(NotificationLeadAssigned, map[string]string{
			"lead_name":              "Ana",
			"lead_phone":             "+5215512345678",
			"vehicle":                "Nissan Versa 2020",
			"first_contact_deadline": "2025-05-14T17:00:00Z",
		})
		require.NoError(t, err)
		assert.Contains(t, body, "Ana (+5215512345678)")
		assert.Contains(t, body, "Nissan Versa 2020")
		assert.Contains(t, body, "2025-05-14T17:00:00Z")
	})

	t.Run("AccountOverdue", func(t *testing.T) {
		body, err := RenderNotification(NotificationAccountOverdue, map[string]string{
			"account_number":   "ACC-001",
			"balance":          "-500.00 MXN",
			"grace_period_end": "2025-04-07 08:00",
		})
		require.NoError(t, err)
		assert.Equal(t, "Your account ACC-001 is overdue with a balance of -500.00 MXN. Pay before 2025-04-07 08:00 to avoid suspension.", body)
	})

	t.Run("UnknownKind", func(t *testing.T) {
		_, err := RenderNotification("birthday", nil)
		require.Error(t, err)
	})
}

func TestNotificationService(t *testing.T) {
	ctx := context.Background()

	t.Run("SendsRenderedText", func(t *testing.T) {
		provider := NewMockMessageProvider(discardLogger)
		svc := NewNotificationService(provider)

		err := svc.Notify(ctx, "+5215500000001", NotificationAccountSuspended, map[string]string{
			"account_number": "ACC-002",
			"balance":        "-1000.00 MXN",
		})
		require.NoError(t, err)

		sent := provider.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "+5215500000001", sent[0].To)
		assert.Contains(t, sent[0].Body, "ACC-002 has been suspended")
	})

	t.Run("RequiresRecipient", func(t *testing.T) {
		svc := NewNotificationService(NewMockMessageProvider(discardLogger))
		err := svc.Notify(ctx, " ", NotificationAccountReactivated, nil)
		require.Error(t, err)
	})

	t.Run("ProviderFailure", func(t *testing.T) {
		provider := NewMockMessageProvider(discardLogger)
		provider.Err = errors.New("quota exceeded")
		svc := NewNotificationService(provider)

		err := svc.Notify(ctx, "+5215500000001", NotificationAccountReactivated, map[string]string{"account_number": "ACC-001"})
		assert.ErrorIs(t, err, provider.Err)
	})
}

func TestAsyncNotifier(t *testing.T) {
	t.Run("DeliversAfterCallerCancels", func(t *testing.T) {
		provider := NewMockMessageProvider(discardLogger)
		notifier := NewAsyncNotifier(NewNotificationService(provider), time.Second, discardLogger)

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, notifier.Notify(ctx, "+5215500000001", NotificationAccountReactivated, map[string]string{"account_number": "ACC-001"}))
		cancel()
		notifier.Wait()

		assert.Len(t, provider.Sent(), 1)
	})

	t.Run("SwallowsFailures", func(t *testing.T) {
		provider := NewMockMessageProvider(discardLogger)
		provider.Err = errors.New("unreachable")
		notifier := NewAsyncNotifier(NewNotificationService(provider), time.Second, discardLogger)

		err := notifier.Notify(context.Background(), "+5215500000001", NotificationAccountReactivated, nil)
		notifier.Wait()

		assert.NoError(t, err)
		assert.Empty(t, provider.Sent())
	})
}

func startFakeWhatsApp(t *testing.T, handler fasthttp.RequestHandler) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &fasthttp.Server{Handler: handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Shutdown() })

	return "http://" + ln.Addr().String()
}

func TestWhatsAppProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("PostsTextMessage", func(t *testing.T) {
		var calls atomic.Int32
		var mu sync.Mutex
		var got whatsAppTextMessage
		var auth, path string

		baseURL := startFakeWhatsApp(t, func(rc *fasthttp.RequestCtx) {
			calls.Add(1)
			mu.Lock()
			defer mu.Unlock()
			path = string(rc.Path())
			auth = string(rc.Request.Header.Peek("Authorization"))
			_ = json.Unmarshal(rc.PostBody(), &got)
			rc.SetStatusCode(fasthttp.StatusOK)
			rc.SetBodyString(`{"messages":[{"id":"wamid.1"}]}`)
		})

		provider := NewWhatsAppProvider(&config.WhatsAppConfig{
			BaseURL:       baseURL + "/v20.0/",
			PhoneNumberID: "1234",
			AccessToken:   "secret-token",
			Timeout:       2 * time.Second,
		})

		require.NoError(t, provider.SendText(ctx, "+5215512345678", "hola"))
		assert.Equal(t, int32(1), calls.Load())

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "/v20.0/1234/messages", path)
		assert.Equal(t, "Bearer secret-token", auth)
		assert.Equal(t, "5215512345678", got.To)
		assert.Equal(t, "whatsapp", got.MessagingProduct)
		assert.Equal(t, "hola", got.Text.Body)
	})

	t.Run("SurfacesAPIError", func(t *testing.T) {
		baseURL := startFakeWhatsApp(t, func(rc *fasthttp.RequestCtx) {
			rc.SetStatusCode(fasthttp.StatusBadRequest)
			rc.SetBodyString(`{"error":{"message":"Recipient phone number not in allowed list","code":131030}}`)
		})

		provider := NewWhatsAppProvider(&config.WhatsAppConfig{BaseURL: baseURL, PhoneNumberID: "1234", Timeout: 2 * time.Second})

		err := provider.SendText(ctx, "+5215512345678", "hola")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not in allowed list")
		assert.Contains(t, err.Error(), "131030")
	})

	t.Run("ExpiredContext", func(t *testing.T) {
		provider := NewWhatsAppProvider(&config.WhatsAppConfig{BaseURL: "http://127.0.0.1:1", PhoneNumberID: "1234", Timeout: time.Second})

		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		err := provider.SendText(ctx, "+5215512345678", "hola")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
