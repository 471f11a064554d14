package events

import (
	"time"

	"github.com/rs/zerolog"
)

// Manager provides module-friendly emission helpers over the raw bus.
// A zero-value Manager is safe to use and drops all events, which keeps
// handler tests free of bus plumbing.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a manager that publishes through the given bus.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "events").Logger(),
	}
}

// Emit publishes an event with the current timestamp.
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	if m == nil || m.bus == nil {
		return
	}

	m.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Msg("Emitting event")

	m.bus.Publish(&Event{
		Type:      eventType,
		Module:    module,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// EmitTyped publishes an event carrying a typed payload. The event type is
// taken from the payload itself.
func (m *Manager) EmitTyped(module string, data EventData) {
	if m == nil || m.bus == nil || data == nil {
		return
	}

	m.log.Debug().
		Str("event_type", string(data.EventType())).
		Str("module", module).
		Msg("Emitting event")

	m.bus.Publish(&Event{
		Type:      data.EventType(),
		Module:    module,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// EmitError publishes an ErrorOccurred event with optional context.
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	if m == nil || m.bus == nil || err == nil {
		return
	}

	m.log.Debug().
		Str("module", module).
		Err(err).
		Msg("Emitting error event")

	m.bus.Publish(&Event{
		Type:      ErrorOccurred,
		Module:    module,
		Timestamp: time.Now(),
		Data: &ErrorEventData{
			Error:   err.Error(),
			Context: context,
		},
	})
}
