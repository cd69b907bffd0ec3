// Package firestore persists user devices in Cloud Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-fcm-gateway/pkg/dispatch"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

const platformWeb = "web"

// FirestoreStore implements dispatch.TokenStore using Google Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
	logger *slog.Logger
}

func NewFirestoreStore(client *firestore.Client, logger *slog.Logger) *FirestoreStore {
	return &FirestoreStore{
		client: client,
		logger: logger.With("component", "FirestoreTokenStore"),
	}
}

// deviceRecord is the internal DB representation.
// Native platforms store a token, web stores the whole subscription.
type deviceRecord struct {
	Platform        string                    `firestore:"platform"`
	Token           string                    `firestore:"token,omitempty"`
	WebSubscription *dispatch.WebSubscription `firestore:"web_subscription,omitempty"`
	UpdatedAt       time.Time                 `firestore:"updated_at"`
}

// RegisterToken upserts a native push token. The document ID is the token
// hash, so registering twice keeps one record.
func (s *FirestoreStore) RegisterToken(ctx context.Context, user urn.URN, platform dispatch.Platform, token string) error {
	record := deviceRecord{
		Platform:  string(platform),
		Token:     token,
		UpdatedAt: time.Now(),
	}

	_, err := s.deviceRef(user, hashToken(token)).Set(ctx, record)
	return err
}

func (s *FirestoreStore) UnregisterToken(ctx context.Context, user urn.URN, _ dispatch.Platform, token string) error {
	_, err := s.deviceRef(user, hashToken(token)).Delete(ctx)
	return err
}

func (s *FirestoreStore) RegisterWeb(ctx context.Context, user urn.URN, sub dispatch.WebSubscription) error {
	// For Web, the Endpoint URL is the unique identifier
	record := deviceRecord{
		Platform:        platformWeb,
		WebSubscription: &sub,
		UpdatedAt:       time.Now(),
	}

	_, err := s.deviceRef(user, hashToken(sub.Endpoint)).Set(ctx, record)
	return err
}

func (s *FirestoreStore) UnregisterWeb(ctx context.Context, user urn.URN, endpoint string) error {
	_, err := s.deviceRef(user, hashToken(endpoint)).Delete(ctx)
	return err
}

// Fetch reads every device of the user and sorts them by delivery path.
func (s *FirestoreStore) Fetch(ctx context.Context, user urn.URN) (*dispatch.Devices, error) {
	iter := s.devicesCollection(user).Documents(ctx)
	defer iter.Stop()

	devices := &dispatch.Devices{
		FCMTokens:        make([]string, 0),
		APNSTokens:       make([]string, 0),
		WebSubscriptions: make([]dispatch.WebSubscription, 0),
	}

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			s.logger.Warn("Skipping unreadable device record", "user", user.String(), "doc", doc.Ref.ID, "err", err)
			continue
		}

		switch {
		case record.Platform == platformWeb && record.WebSubscription != nil:
			devices.WebSubscriptions = append(devices.WebSubscriptions, *record.WebSubscription)
		case record.Platform == string(dispatch.PlatformAPNS) && record.Token != "":
			devices.APNSTokens = append(devices.APNSTokens, record.Token)
		case record.Token != "":
			// Records written before platforms were tracked default to FCM.
			devices.FCMTokens = append(devices.FCMTokens, record.Token)
		}
	}

	return devices, nil
}

// deviceRef: users/{userID}/devices/{deviceHash}
func (s *FirestoreStore) deviceRef(user urn.URN, docID string) *firestore.DocumentRef {
	return s.devicesCollection(user).Doc(docID)
}

func (s *FirestoreStore) devicesCollection(user urn.URN) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(user.String()).Collection("devices")
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
