package schemas

import "time"

// RunStatus tracks the lifecycle of a recorded run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Run groups the perception states and actions of one engine invocation
// (a one-shot perceive or a full objective loop).
type Run struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	Objective string    `json:"objective,omitempty"`
	Status    RunStatus `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Steps     int       `json:"steps"`
}

// StoredState is a perception state as persisted: the state document plus
// the sanitized, compressed snapshot and the optional screenshot captured
// with it.
type StoredState struct {
	State *PerceptionState `json:"state"`

	// SnapshotBr is the sanitized page HTML, brotli-compressed.
	SnapshotBr []byte `json:"-"`
	// ScreenshotPNG is the full-page capture, when screenshots are enabled.
	ScreenshotPNG []byte `json:"-"`
}
