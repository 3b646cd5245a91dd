package catalog

import (
	"context"

	pubsubv2 "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

// EntityDeletedEvent is published when an entity document is removed. The
// worker sweeping orphaned blobs consumes it and deletes the listed paths.
type EntityDeletedEvent struct {
	SiteKey    string   `json:"siteKey"`
	Kind       string   `json:"kind"`
	EntityID   string   `json:"entityId"`
	MediaPaths []string `json:"mediaPaths"`
}

// EventPublisher abstracts the message bus for testability.
type EventPublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// PubSubPublisher publishes through a Google Pub/Sub topic and waits for the
// server acknowledgement.
type PubSubPublisher struct {
	publisher *pubsubv2.Publisher
}

func NewPubSubPublisher(publisher *pubsubv2.Publisher) *PubSubPublisher {
	return &PubSubPublisher{publisher: publisher}
}

func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	if p == nil || p.publisher == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "event publisher not configured")
	}
	result := p.publisher.Publish(ctx, &pubsubv2.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publishing event")
	}
	return nil
}
