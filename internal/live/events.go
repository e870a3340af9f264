package live

import (
	"github.com/MrWong99/vivavoce/pkg/audio"
	provlive "github.com/MrWong99/vivavoce/pkg/provider/live"
)

// event is anything posted to the controller's event loop. All mutations of
// playback state happen while handling an event.
type event interface{ isEvent() }

type (
	// frameCaptured carries a copy of one microphone frame.
	frameCaptured struct{ frame audio.Frame }

	// messageReceived carries one inbound session message.
	messageReceived struct{ msg provlive.Message }

	// transportFailed reports that the session ended with an error.
	transportFailed struct{ err error }

	// snapshotRequest asks the loop for a copy of the playback schedule.
	snapshotRequest struct{ reply chan PlaybackSchedule }
)

func (frameCaptured) isEvent()   {}
func (messageReceived) isEvent() {}
func (transportFailed) isEvent() {}
func (snapshotRequest) isEvent() {}
