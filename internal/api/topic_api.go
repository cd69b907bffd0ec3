package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-fcm-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/fcm"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
)

// TopicAPI subscribes the caller's FCM tokens to topics.
type TopicAPI struct {
	Store  dispatch.TokenStore
	Topics dispatch.TopicManager
	Logger *slog.Logger
}

func NewTopicAPI(store dispatch.TokenStore, topics dispatch.TopicManager, logger *slog.Logger) *TopicAPI {
	return &TopicAPI{
		Store:  store,
		Topics: topics,
		Logger: logger.With("component", "TopicAPI"),
	}
}

type topicCall func(ctx context.Context, topic string, tokens []string) error

// Subscribe handles POST /api/v1/topics/{topic}/subscribe.
func (api *TopicAPI) Subscribe(w http.ResponseWriter, r *http.Request) {
	api.manage(w, r, "subscribe", api.Topics.SubscribeToTopic)
}

// Unsubscribe handles POST /api/v1/topics/{topic}/unsubscribe.
func (api *TopicAPI) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	api.manage(w, r, "unsubscribe", api.Topics.UnsubscribeFromTopic)
}

func (api *TopicAPI) manage(w http.ResponseWriter, r *http.Request, op string, call topicCall) {
	userURN, ok := authenticatedUser(w, r)
	if !ok {
		return
	}

	topic, err := fcm.NewTopicTarget(r.PathValue("topic"))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	devices, err := api.Store.Fetch(r.Context(), userURN)
	if err != nil {
		api.Logger.Error("failed to fetch devices", "op", op, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	if devices == nil || len(devices.FCMTokens) == 0 {
		response.WriteJSONError(w, http.StatusNotFound, "no fcm tokens registered")
		return
	}

	if err := call(r.Context(), topic.Name(), devices.FCMTokens); err != nil {
		api.Logger.Error("topic management failed", "op", op, "topic", topic.Name(), "err", err)
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		response.WriteJSONError(w, status, "topic "+op+" failed")
		return
	}
	api.Logger.Info("Topic membership updated", "op", op, "topic", topic.Name(), "user", userURN.String(), "count", len(devices.FCMTokens))

	w.WriteHeader(http.StatusNoContent)
}
