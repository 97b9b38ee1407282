package listing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"walletservice/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ListingConfig{
		BaseURL:   srv.URL + "/",
		TimeoutMS: int(timeout / time.Millisecond),
	}, zaptest.NewLogger(t))
}

func TestCanWithdraw_Allowed(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, canWithdrawPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"data":true,"message":"ok","errors":null}`))
	}, time.Second)

	ok, err := client.CanWithdraw(context.Background(), "user-1", decimal.RequireFromString("1500.50"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user-1", got["userId"])
	assert.Equal(t, 1500.5, got["amountToWithdraw"])
}

func TestCanWithdraw_Denied(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "data false", body: `{"success":true,"data":false,"message":"funds locked"}`},
		{name: "success false", body: `{"success":false,"data":true,"errors":["boom"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, time.Second)

			ok, err := client.CanWithdraw(context.Background(), "user-1", decimal.NewFromInt(10))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCanWithdraw_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "server error", handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{name: "bad json", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
		{name: "timeout", handler: func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler, 100*time.Millisecond)

			ok, err := client.CanWithdraw(context.Background(), "user-1", decimal.NewFromInt(10))
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.False(t, ok)
		})
	}
}

func TestCanWithdraw_SingleAttempt(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}, time.Second)

	_, err := client.CanWithdraw(context.Background(), "user-1", decimal.NewFromInt(10))
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
