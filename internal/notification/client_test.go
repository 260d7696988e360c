package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client := NewClient("https://api.example.com/", "test-key")

	assert.Equal(t, "https://api.example.com/notify", client.endpoint)
	assert.Equal(t, "https://api.example.com/notify", NewClient("https://api.example.com/notify", "k").endpoint)
	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, 10*time.Second, client.httpClient.Timeout)

	custom := &http.Client{Timeout: 5 * time.Second}
	assert.Equal(t, custom, NewClient("https://api.example.com", "k", WithHTTPClient(custom)).httpClient)
}

func TestValidateRequest(t *testing.T) {
	client := NewClient("https://api.example.com", "test-key")

	tests := []struct {
		name    string
		request *Request
		wantErr string
	}{
		{"valid", &Request{UserID: "user-1", EventType: EventTypePaymentReminder, Priority: PriorityHigh}, ""},
		{"missing user", &Request{EventType: EventTypePaymentReminder}, "userId is required"},
		{"missing event type", &Request{UserID: "user-1"}, "eventType is required"},
		{"unknown event type", &Request{UserID: "user-1", EventType: "BOOKING_UPDATE"}, "invalid eventType: BOOKING_UPDATE"},
		{"unknown priority", &Request{UserID: "user-1", EventType: EventTypeRefundUpdate, Priority: "URGENT"}, "invalid priority: URGENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.validateRequest(tt.request)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, tt.request.Data)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestSendPaymentReminder(t *testing.T) {
	var received Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notify", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{NotificationID: "n-1", Status: "SENT", ChannelsUsed: []string{"push"}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	resp, err := client.SendPaymentReminder(context.Background(), "user-2", PaymentReminderData{
		SplitPaymentID:      "split-1",
		IndividualPaymentID: "p2",
		AmountDisplay:       "$33.34",
		Deadline:            "2026-03-01",
		ReminderCount:       2,
	})
	require.NoError(t, err)
	assert.Equal(t, "n-1", resp.NotificationID)
	assert.Equal(t, EventTypePaymentReminder, received.EventType)
	assert.Equal(t, "$33.34", received.Data["amountDisplay"])
	assert.Equal(t, NotificationID("reminder", "p2", "2"), received.NotificationID)
}

func TestNotificationID(t *testing.T) {
	first := NotificationID("reminder", "p2", "1")

	assert.Equal(t, first, NotificationID("reminder", "p2", "1"))
	assert.NotEqual(t, first, NotificationID("reminder", "p2", "2"))
	assert.NotEqual(t, first, NotificationID("refund", "p2", "1"))
}

func TestSendAcceptedWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, "test-key").SendRefundUpdate(context.Background(), "user-1",
		RefundUpdateData{RefundRequestID: "r1", Status: "denied"})
	require.NoError(t, err)
	assert.Equal(t, NotificationID("refund", "r1", "denied"), resp.NotificationID)
}

func TestSendPlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "test-key").SendSplitStatus(context.Background(), "user-1",
		SplitStatusData{SplitPaymentID: "split-1", Status: "completed"}, PriorityHigh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502: upstream unavailable")
}

func TestSendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(Response{Error: "unknown user"})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/notify", "test-key")
	_, err := client.SendRefundUpdate(context.Background(), "user-1", RefundUpdateData{RefundRequestID: "r1", Status: "denied"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown user")
}
