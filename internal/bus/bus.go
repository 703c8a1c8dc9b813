// Package bus publishes designer submission events over Go channels or NATS.
package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-health/rulesmith/internal/domain"
)

var (
	// ErrTenantRequired is returned when an operation is called without a tenant.
	ErrTenantRequired = errors.New("bus: tenantID is required")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bus: closed")
)

// New creates the event bus selected by cfg.Type.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{"source": "rulesmith"},
		Timestamp: time.Now().UnixNano(),
	}
}
