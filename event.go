package sea

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type EventLevel string

const (
	LvlError EventLevel = "error"
	LvlWarn  EventLevel = "warn"
	LvlInfo  EventLevel = "info"
)

// EventKind names a lifecycle notification of the server.
type EventKind string

const (
	// KindServerStarted is broadcast once per worker process,
	// after its server begins listening.
	KindServerStarted EventKind = "server_started"
	// KindServerStopped is broadcast once per process, when it
	// begins handling a termination signal.
	KindServerStopped EventKind = "server_stopped"
	// KindServerError reports a non-lifecycle failure.
	KindServerError EventKind = "server_error"
)

// Event is a fire-and-forget broadcast notification. Subscribers get no
// acknowledgment contract; a lost event is not an error.
type Event struct {
	Level   EventLevel
	Kind    EventKind
	Fields  map[string]interface{}
	Message string
}

func (e Event) IsError() bool {
	return e.Level == LvlError
}

func (e Event) ToError() error {
	if !e.IsError() {
		return nil
	}
	return errors.New(e.Message)
}

func (e Event) SetField(key string, value interface{}) Event {
	if e.Fields == nil {
		e.Fields = map[string]interface{}{}
	}
	e.Fields[key] = value
	return e
}

func InfoEvent(kind EventKind, msg string) Event {
	return Event{
		Level:   LvlInfo,
		Kind:    kind,
		Fields:  map[string]interface{}{},
		Message: msg,
	}
}

func WarnEvent(kind EventKind, msg string) Event {
	return Event{
		Level:   LvlWarn,
		Kind:    kind,
		Fields:  map[string]interface{}{},
		Message: msg,
	}
}

func ErrorEvent(msg string) Event {
	return Event{
		Level:   LvlError,
		Kind:    KindServerError,
		Fields:  map[string]interface{}{},
		Message: msg,
	}
}

// EventHandler consumes lifecycle notifications of the server.
type EventHandler func(Event)

// LogrusEventHandler returns default `EventHandler` that can be used for `Server.SetEventHandler()`.
func LogrusEventHandler(entry *logrus.Entry) EventHandler {
	return func(event Event) {
		var level logrus.Level
		switch event.Level {
		case LvlError:
			level = logrus.ErrorLevel
		case LvlInfo:
			level = logrus.InfoLevel
		default:
			level = logrus.WarnLevel
		}

		entry.WithField("kind", string(event.Kind)).
			WithFields(event.Fields).
			Log(level, event.Message)
	}
}
