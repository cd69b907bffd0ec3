// Package pipeline contains the core message processing components for the service.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/dispatch"
)

// SendRequestTransformer is a dataflow Transformer that unmarshals and
// validates a raw payload into a dispatch.SendRequest.
//
// Directly addressed requests are built once here so that a message the FCM
// core rejects (too many topics, bad condition, loud notification on a silent
// message) is dead-lettered instead of retried.
func SendRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*dispatch.SendRequest, bool, error) {
	var req dispatch.SendRequest

	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal send request from message %s: %w", msg.ID, err)
	}
	if err := req.Validate(); err != nil {
		return nil, true, fmt.Errorf("invalid send request in message %s: %w", msg.ID, err)
	}

	if req.IsDirect() {
		if _, err := req.BuildMessage(); err != nil {
			return nil, true, fmt.Errorf("cannot build fcm message from message %s: %w", msg.ID, err)
		}
	} else if _, _, err := req.Content(); err != nil {
		return nil, true, fmt.Errorf("cannot build notification from message %s: %w", msg.ID, err)
	}

	if req.ID == "" {
		req.ID = msg.ID
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	return &req, false, nil
}
