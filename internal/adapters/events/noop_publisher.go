package events

import "context"

// NoopPublisher discards events. Used when no broker is configured.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (NoopPublisher) Publish(context.Context, string, []byte, string) error { return nil }
