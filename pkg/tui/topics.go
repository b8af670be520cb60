package tui

// Topics on the in-memory bus. Watchers publish domain envelopes to
// TopicHarborEvents; the transformer turns them into UI envelopes on
// TopicUIMessages, which the forwarder hands to the bubbletea program.
const (
	TopicHarborEvents = "harbor.events"
	TopicUIMessages   = "harbor.ui.msgs"
)

const (
	DomainTypeStateSnapshot = "state.snapshot"
	DomainTypeServiceExit   = "service.exit.observed"
)

const (
	UITypeStateSnapshot = "tui.state.snapshot"
	UITypeEventAppend   = "tui.event.append"
)
