package ports

import (
	"context"

	"signalHub/internal/domain"
)

// MessageChannel delivers rendered text to a destination (chat, channel).
type MessageChannel interface {
	Send(ctx context.Context, destination, message string) error
}

// SignalStream publishes signal lifecycle events to downstream consumers.
type SignalStream interface {
	PublishSignal(ctx context.Context, sig *domain.Signal) error
	PublishStatus(ctx context.Context, sig *domain.Signal, previous domain.SignalStatus) error
}
