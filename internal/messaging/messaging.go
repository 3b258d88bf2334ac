package messaging

import (
	"context"
	"time"

	"rentradar-backend/pkg/models"
)

const (
	OfferQueue      = "offer_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type Publisher interface {
	PublishOfferTask(ctx context.Context, payload models.OfferTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
