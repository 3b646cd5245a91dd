package blobgc

import (
	"context"

	pubsubv2 "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/logger"
)

// Consumer pumps the entity-deleted subscription into the handler. Run blocks
// until the context is canceled or the stream breaks.
type Consumer struct {
	subscriber *pubsubv2.Subscriber
	handler    *Handler
	logg       *logger.Logger
}

func NewConsumer(subscriber *pubsubv2.Subscriber, handler *Handler, logg *logger.Logger) (*Consumer, error) {
	if subscriber == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "blobgc consumer requires a subscriber")
	}
	if handler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "blobgc consumer requires a handler")
	}
	return &Consumer{subscriber: subscriber, handler: handler, logg: logg}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	if c.logg != nil {
		c.logg.Info(ctx, "blob gc consumer started")
	}
	return c.subscriber.Receive(ctx, func(msgCtx context.Context, msg *pubsubv2.Message) {
		if err := c.handler.Handle(msgCtx, msg.Data); err != nil {
			if c.logg != nil {
				c.logg.Warn(msgCtx, "entity deleted event requeued")
			}
			msg.Nack()
			return
		}
		msg.Ack()
	})
}
