package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fcm-gateway/internal/metrics"
	"github.com/tinywideclouds/go-fcm-gateway/internal/pipeline"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Typed Mocks ---

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, msg *fcm.Message) (string, []string, error) {
	args := m.Called(ctx, msg)
	invalid, _ := args.Get(1).([]string)
	return args.String(0), invalid, args.Error(2)
}

type mockAPNSDispatcher struct {
	mock.Mock
}

func (m *mockAPNSDispatcher) Dispatch(ctx context.Context, tokens []string, n fcm.Notification, data map[string]any) (string, []string, error) {
	args := m.Called(ctx, tokens, n, data)
	invalid, _ := args.Get(1).([]string)
	return args.String(0), invalid, args.Error(2)
}

type mockWebDispatcher struct {
	mock.Mock
}

func (m *mockWebDispatcher) Dispatch(ctx context.Context, subs []dispatch.WebSubscription, n fcm.Notification, data map[string]any) (string, []dispatch.WebSubscription, error) {
	args := m.Called(ctx, subs, n, data)
	invalid, _ := args.Get(1).([]dispatch.WebSubscription)
	return args.String(0), invalid, args.Error(2)
}

type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) Fetch(ctx context.Context, user urn.URN) (*dispatch.Devices, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.Devices), args.Error(1)
}
func (m *mockTokenStore) UnregisterToken(ctx context.Context, user urn.URN, platform dispatch.Platform, token string) error {
	return m.Called(ctx, user, platform, token).Error(0)
}
func (m *mockTokenStore) UnregisterWeb(ctx context.Context, user urn.URN, endpoint string) error {
	return m.Called(ctx, user, endpoint).Error(0)
}
func (m *mockTokenStore) RegisterToken(ctx context.Context, user urn.URN, platform dispatch.Platform, token string) error {
	return m.Called(ctx, user, platform, token).Error(0)
}
func (m *mockTokenStore) RegisterWeb(ctx context.Context, user urn.URN, sub dispatch.WebSubscription) error {
	return m.Called(ctx, user, sub).Error(0)
}

func newMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func TestProcessor_Routing(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	testURN, _ := urn.Parse("urn:sm:user:test-processor")

	inboundReq := &dispatch.SendRequest{
		ID:           "req-1",
		RecipientID:  testURN.String(),
		Notification: &dispatch.NotificationSpec{Title: "Hello"},
		Data:         map[string]any{"k": "v"},
	}

	t.Run("Routes Mixed Traffic Correctly", func(t *testing.T) {
		gatewayMock := new(mockTransport)
		apnsMock := new(mockAPNSDispatcher)
		webMock := new(mockWebDispatcher)
		storeMock := new(mockTokenStore)
		m := newMetrics()

		devices := &dispatch.Devices{
			FCMTokens:        []string{"fcm-123"},
			APNSTokens:       []string{"apns-123"},
			WebSubscriptions: []dispatch.WebSubscription{{Endpoint: "https://web.push/abc"}},
		}
		storeMock.On("Fetch", mock.Anything, testURN).Return(devices, nil)

		gatewayMock.On("Send", mock.Anything, mock.MatchedBy(func(msg *fcm.Message) bool {
			return assert.ObjectsAreEqual([]string{"fcm-123"}, msg.Tokens()) && msg.Notification() != nil
		})).Return("success:1 invalid:0", nil, nil)

		apnsMock.On("Dispatch", mock.Anything, []string{"apns-123"}, mock.Anything, map[string]any{"k": "v"}).
			Return("success:1", nil, nil)

		webMock.On("Dispatch", mock.Anything, devices.WebSubscriptions, mock.Anything, map[string]any{"k": "v"}).
			Return("success:1", nil, nil)

		processor := pipeline.NewProcessor(gatewayMock, apnsMock, webMock, storeMock, m, logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		require.NoError(t, err)
		gatewayMock.AssertExpectations(t)
		apnsMock.AssertExpectations(t)
		webMock.AssertExpectations(t)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatched.WithLabelValues(metrics.PathFCM)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatched.WithLabelValues(metrics.PathAPNS)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatched.WithLabelValues(metrics.PathWeb)))
	})

	t.Run("Self-Healing FCM and APNs Cleanup", func(t *testing.T) {
		gatewayMock := new(mockTransport)
		apnsMock := new(mockAPNSDispatcher)
		storeMock := new(mockTokenStore)
		m := newMetrics()

		devices := &dispatch.Devices{
			FCMTokens:  []string{"fcm-good", "fcm-dead"},
			APNSTokens: []string{"apns-dead"},
		}
		storeMock.On("Fetch", mock.Anything, testURN).Return(devices, nil)

		gatewayMock.On("Send", mock.Anything, mock.Anything).Return("success:1 invalid:1", []string{"fcm-dead"}, nil)
		apnsMock.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("success:0", []string{"apns-dead"}, nil)

		storeMock.On("UnregisterToken", mock.Anything, testURN, dispatch.PlatformFCM, "fcm-dead").Return(nil)
		storeMock.On("UnregisterToken", mock.Anything, testURN, dispatch.PlatformAPNS, "apns-dead").Return(nil)

		processor := pipeline.NewProcessor(gatewayMock, apnsMock, nil, storeMock, m, logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		require.NoError(t, err)
		storeMock.AssertExpectations(t)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidTokens.WithLabelValues(metrics.PathFCM)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidTokens.WithLabelValues(metrics.PathAPNS)))
	})

	t.Run("Self-Healing Web Cleanup", func(t *testing.T) {
		gatewayMock := new(mockTransport)
		webMock := new(mockWebDispatcher)
		storeMock := new(mockTokenStore)

		badSub := dispatch.WebSubscription{Endpoint: "https://dead.endpoint"}
		storeMock.On("Fetch", mock.Anything, testURN).Return(&dispatch.Devices{
			WebSubscriptions: []dispatch.WebSubscription{badSub},
		}, nil)

		webMock.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return("failed", []dispatch.WebSubscription{badSub}, nil)
		storeMock.On("UnregisterWeb", mock.Anything, testURN, "https://dead.endpoint").Return(nil)

		processor := pipeline.NewProcessor(gatewayMock, nil, webMock, storeMock, newMetrics(), logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		require.NoError(t, err)
		storeMock.AssertExpectations(t)
		gatewayMock.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("Transport error is returned for redelivery", func(t *testing.T) {
		gatewayMock := new(mockTransport)
		webMock := new(mockWebDispatcher)
		storeMock := new(mockTokenStore)
		m := newMetrics()

		storeMock.On("Fetch", mock.Anything, testURN).Return(&dispatch.Devices{
			FCMTokens:        []string{"fcm-1"},
			WebSubscriptions: []dispatch.WebSubscription{{Endpoint: "https://web.push/x"}},
		}, nil)
		gatewayMock.On("Send", mock.Anything, mock.Anything).Return("", nil, errors.New("fcm down"))

		processor := pipeline.NewProcessor(gatewayMock, nil, webMock, storeMock, m, logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		assert.ErrorContains(t, err, "fcm down")
		webMock.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Failed.WithLabelValues(metrics.PathFCM)))
	})

	t.Run("Failed later batch is retried as a whole", func(t *testing.T) {
		gatewayMock := new(mockTransport)
		storeMock := new(mockTokenStore)

		tokens := make([]string, fcm.MaxDevices+1)
		for i := range tokens {
			tokens[i] = fmt.Sprintf("tok-%d", i)
		}
		storeMock.On("Fetch", mock.Anything, testURN).Return(&dispatch.Devices{FCMTokens: tokens}, nil)
		gatewayMock.On("Send", mock.Anything, mock.Anything).Return("success:1000 invalid:0", nil, nil).Once()
		gatewayMock.On("Send", mock.Anything, mock.Anything).Return("", nil, errors.New("unavailable")).Once()

		processor := pipeline.NewProcessor(gatewayMock, nil, nil, storeMock, newMetrics(), logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		// The whole request is redelivered, first batch included.
		assert.Error(t, err)
		gatewayMock.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("Store failure is retryable", func(t *testing.T) {
		storeMock := new(mockTokenStore)
		storeMock.On("Fetch", mock.Anything, testURN).Return(nil, errors.New("firestore unavailable"))

		processor := pipeline.NewProcessor(new(mockTransport), nil, nil, storeMock, newMetrics(), logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		assert.Error(t, err)
	})

	t.Run("No devices drops the request", func(t *testing.T) {
		gatewayMock := new(mockTransport)
		storeMock := new(mockTokenStore)
		storeMock.On("Fetch", mock.Anything, testURN).Return(&dispatch.Devices{}, nil)

		processor := pipeline.NewProcessor(gatewayMock, nil, nil, storeMock, newMetrics(), logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		require.NoError(t, err)
		gatewayMock.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestProcessor_Direct(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("Topic request goes to the gateway", func(t *testing.T) {
		gatewayMock := new(mockTransport)
		storeMock := new(mockTokenStore)
		m := newMetrics()

		req := &dispatch.SendRequest{Topics: []string{"news"}, Notification: &dispatch.NotificationSpec{Title: "Breaking"}}

		gatewayMock.On("Send", mock.Anything, mock.MatchedBy(func(msg *fcm.Message) bool {
			return msg.TargetType() == fcm.KindTopic && len(msg.Targets()) == 1
		})).Return("message_id:1", nil, nil)

		processor := pipeline.NewProcessor(gatewayMock, nil, nil, storeMock, m, logger)
		err := processor(ctx, messagepipeline.Message{}, req)

		require.NoError(t, err)
		gatewayMock.AssertExpectations(t)
		storeMock.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatched.WithLabelValues(metrics.PathTopic)))
	})

	t.Run("Unbuildable request is dropped", func(t *testing.T) {
		gatewayMock := new(mockTransport)
		m := newMetrics()

		req := &dispatch.SendRequest{Topics: []string{"a", "b"}}

		processor := pipeline.NewProcessor(gatewayMock, nil, nil, new(mockTokenStore), m, logger)
		err := processor(ctx, messagepipeline.Message{}, req)

		require.NoError(t, err)
		gatewayMock.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped))
	})

	t.Run("Gateway error is returned", func(t *testing.T) {
		gatewayMock := new(mockTransport)
		gatewayMock.On("Send", mock.Anything, mock.Anything).Return("", nil, errors.New("503"))

		req := &dispatch.SendRequest{Tokens: []string{"t1", "t2"}}

		processor := pipeline.NewProcessor(gatewayMock, nil, nil, new(mockTokenStore), newMetrics(), logger)
		err := processor(ctx, messagepipeline.Message{}, req)

		assert.Error(t, err)
	})
}
