package apns

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
)

// MockAPNSClient definition repeated here for internal test visibility
type MockAPNSClient struct {
	mock.Mock
}

func (m *MockAPNSClient) Push(n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func newTestDispatcher(client APNSClient) *Dispatcher {
	return &Dispatcher{
		client: client,
		topic:  "com.test.app",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// payloadJSON decodes the payload that was pushed for inspection.
func payloadJSON(t *testing.T, n *apns2.Notification) map[string]any {
	t.Helper()
	b, err := json.Marshal(n.Payload)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestDispatch_Internal(t *testing.T) {
	ctx := context.Background()
	data := map[string]any{"msg_id": "123"}

	t.Run("Happy Path - Success", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient)

		n := fcm.NewIOSNotification("Hello iOS", "Body").SetSound("default").SetBadge(4)

		var pushed *apns2.Notification
		mockClient.On("Push", mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-1" && n.Topic == "com.test.app"
		})).Run(func(args mock.Arguments) {
			pushed = args.Get(0).(*apns2.Notification)
		}).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)

		receipt, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1"}, n, data)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "success:1")
		mockClient.AssertExpectations(t)

		require.NotNil(t, pushed)
		assert.Equal(t, apns2.PushTypeAlert, pushed.PushType)
		assert.Equal(t, apns2.PriorityHigh, pushed.Priority)

		body := payloadJSON(t, pushed)
		aps := body["aps"].(map[string]any)
		assert.Equal(t, "default", aps["sound"])
		assert.EqualValues(t, 4, aps["badge"])
		assert.Equal(t, "Hello iOS", aps["alert"].(map[string]any)["title"])
		assert.Equal(t, "123", body["msg_id"])
	})

	t.Run("Silent notification is a background push", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient)

		n := fcm.NewIOSNotification("Sync", "").SetSound("default").SetBadge(2)
		require.NoError(t, n.SetSilent())

		var pushed *apns2.Notification
		mockClient.On("Push", mock.Anything).Run(func(args mock.Arguments) {
			pushed = args.Get(0).(*apns2.Notification)
		}).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)

		_, _, err := dispatcher.Dispatch(ctx, []string{"token-1"}, n, nil)
		require.NoError(t, err)

		require.NotNil(t, pushed)
		assert.Equal(t, apns2.PushTypeBackground, pushed.PushType)
		assert.Equal(t, apns2.PriorityLow, pushed.Priority)

		aps := payloadJSON(t, pushed)["aps"].(map[string]any)
		assert.EqualValues(t, 1, aps["content-available"])
		assert.NotContains(t, aps, "alert")
		assert.NotContains(t, aps, "badge")
		assert.NotContains(t, aps, "sound")
	})

	t.Run("Self-Healing - Bad Device Token", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient)

		mockClient.On("Push", mock.Anything).Return(&apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonBadDeviceToken,
		}, nil)

		_, invalid, err := dispatcher.Dispatch(ctx, []string{"bad-token"}, fcm.NewNotification("t", "b"), data)

		require.NoError(t, err)
		assert.Equal(t, []string{"bad-token"}, invalid)
	})

	t.Run("Transport Failure - Best Effort", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient)

		mockClient.On("Push", mock.Anything).Return(nil, errors.New("connection refused"))

		receipt, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1"}, fcm.NewNotification("t", "b"), data)

		// Transport errors are logged and counted, not retried.
		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "total_fail:1")
	})

	t.Run("No tokens", func(t *testing.T) {
		dispatcher := newTestDispatcher(new(MockAPNSClient))

		receipt, _, err := dispatcher.Dispatch(ctx, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "skipped: no tokens", receipt)
	})
}
