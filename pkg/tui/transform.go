package tui

import (
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// RegisterDomainToUITransformer re-publishes domain envelopes as UI
// envelopes. Every snapshot is forwarded; an event log line is added only
// when the overall state summary changes.
func RegisterDomainToUITransformer(bus *Bus) {
	var (
		mu       sync.Mutex
		lastText string
	)

	bus.AddHandler("harbor-domain-to-ui", TopicHarborEvents, func(msg *message.Message) error {
		defer msg.Ack()

		env, err := ParseEnvelope(msg.Payload)
		if err != nil {
			return err
		}

		switch env.Type {
		case DomainTypeStateSnapshot:
			var snap StateSnapshot
			if err := env.Decode(&snap); err != nil {
				return err
			}
			if err := publish(bus.Publisher, TopicUIMessages, UITypeStateSnapshot, snap); err != nil {
				return errors.Wrap(err, "publish ui snapshot")
			}

			level, text := summarize(snap)
			mu.Lock()
			changed := text != lastText
			lastText = text
			mu.Unlock()
			if !changed {
				return nil
			}
			entry := EventLogEntry{At: snap.At, Source: "state", Level: level, Text: text}
			return publish(bus.Publisher, TopicUIMessages, UITypeEventAppend, entry)

		case DomainTypeServiceExit:
			var ev ServiceExitObserved
			if err := env.Decode(&ev); err != nil {
				return err
			}
			text := fmt.Sprintf("service exit: %s pid=%d", ev.Name, ev.PID)
			if ev.Reason != "" {
				text = fmt.Sprintf("%s (%s)", text, ev.Reason)
			}
			entry := EventLogEntry{At: ev.When, Source: ev.Name, Level: LogLevelWarn, Text: text}
			return publish(bus.Publisher, TopicUIMessages, UITypeEventAppend, entry)
		}
		return nil
	})
}

func summarize(snap StateSnapshot) (LogLevel, string) {
	switch {
	case !snap.Exists:
		return LogLevelInfo, "state: none (stopped)"
	case snap.Error != "":
		return LogLevelError, "state: " + snap.Error
	}
	alive, total := snap.Alive()
	if alive < total {
		return LogLevelWarn, fmt.Sprintf("state: %d/%d services alive", alive, total)
	}
	return LogLevelInfo, fmt.Sprintf("state: %d/%d services alive", alive, total)
}
