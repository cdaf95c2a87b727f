package lavinmq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/fesoni/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher_RequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewPublisher(Config{}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewPublisher(Config{URL: "not a url"}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	var got publishRequest
	var path, user, pass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		user, pass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"routed":true}`))
	}))
	defer server.Close()

	pub, err := NewPublisher(Config{URL: server.URL, Username: "guest", Password: "secret"}, server.Client(), nil)
	require.NoError(t, err)

	err = pub.Publish(context.Background(), "fesoni.notifications", map[string]string{"message": "hi"})
	require.NoError(t, err)

	assert.Equal(t, "/api/exchanges/%2F/amq.direct/publish", path)
	assert.Equal(t, "guest", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "fesoni.notifications", got.RoutingKey)
	assert.Equal(t, "string", got.PayloadEncoding)
	assert.JSONEq(t, `{"message":"hi"}`, got.Payload)
}

func TestPublisher_PublishFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{}`, nil},
		{"not routed", http.StatusOK, `{"routed":false}`, ErrNotRouted},
		{"malformed response", http.StatusOK, `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			pub, err := NewPublisher(Config{URL: server.URL}, server.Client(), nil)
			require.NoError(t, err)

			err = pub.Publish(context.Background(), "fesoni.tasks", "payload")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPublisher_Healthy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		delay  time.Duration
		want   bool
	}{
		{"healthy", http.StatusOK, `{"management_version":"1.2.3"}`, 0, true},
		{"lavinmq version only", http.StatusOK, `{"lavinmq_version":"2.0.0"}`, 0, true},
		{"missing version", http.StatusOK, `{}`, 0, false},
		{"unauthorized", http.StatusUnauthorized, `{}`, 0, false},
		{"slow broker", http.StatusOK, `{"management_version":"1"}`, 200 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/overview", r.URL.Path)
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			pub, err := NewPublisher(Config{URL: server.URL, HealthTimeout: 50 * time.Millisecond}, server.Client(), nil)
			require.NoError(t, err)

			assert.Equal(t, tt.want, pub.Healthy(context.Background()))
		})
	}
}
