package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cotizabot/cotizabot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3StatementStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Disabled", func(t *testing.T) {
		_, err := NewS3StatementStore(ctx, config.StorageConfig{})
		require.Error(t, err)
	})

	t.Run("PutsObjectUnderPrefix", func(t *testing.T) {
		var mu sync.Mutex
		var method, path, contentType string
		var body []byte

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			method = r.Method
			path = r.URL.Path
			contentType = r.Header.Get("Content-Type")
			body, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		store, err := NewS3StatementStore(ctx, config.StorageConfig{
			Enabled:         true,
			Bucket:          "statements",
			Region:          "us-east-1",
			EndpointURL:     server.URL,
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			Prefix:          "brokers",
		})
		require.NoError(t, err)

		location, err := store.Put(ctx, "ACC-001/statement.xlsx", []byte("xlsx"), "application/octet-stream")
		require.NoError(t, err)
		assert.Equal(t, "s3://statements/brokers/ACC-001/statement.xlsx", location)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, http.MethodPut, method)
		assert.Equal(t, "/statements/brokers/ACC-001/statement.xlsx", path)
		assert.Equal(t, "application/octet-stream", contentType)
		assert.Contains(t, string(body), "xlsx")
	})
}

func TestNoopEventPublisher(t *testing.T) {
	var p EventPublisher = NoopEventPublisher{}
	assert.NoError(t, p.Publish(context.Background(), NewDomainEvent(EventLeadAssigned, 1, nil)))
	assert.NoError(t, p.Close())
}

func TestNewDomainEvent(t *testing.T) {
	event := NewDomainEvent(EventAccountSuspended, 42, map[string]any{"broker_id": 7})
	assert.Equal(t, EventAccountSuspended, event.Type)
	assert.Equal(t, uint(42), event.AggregateID)
	assert.NotEqual(t, event.ID, NewDomainEvent(EventAccountSuspended, 42, nil).ID)
	assert.False(t, event.OccurredAt.IsZero())
}
