// api/schemas/actions.go
package schemas

import (
	"time"
)

// ActionType enumerates the concrete steps the planner can decide on. The
// vocabulary is deliberately small; everything the engine can do to a page is
// expressed through it.
type ActionType string

const (
	ActionClick    ActionType = "CLICK"    // Click the element addressed by Bid.
	ActionTypeText ActionType = "TYPE"     // Type Text into the element addressed by Bid.
	ActionSelect   ActionType = "SELECT"   // Choose option Text in the select addressed by Bid.
	ActionScroll   ActionType = "SCROLL"   // Scroll the page (Direction "up"/"down").
	ActionNavigate ActionType = "NAVIGATE" // Navigate to URL.
	ActionWait     ActionType = "WAIT"     // Pause before the next observation.
	ActionDone     ActionType = "DONE"     // The objective is complete.
	ActionFail     ActionType = "FAIL"     // The objective cannot be completed.
)

// Action is one concrete step decided by the planner against a perception
// state. Bid addresses an element of that state only; it is meaningless once
// the page has been re-perceived.
type Action struct {
	ID   string     `json:"id"`
	Type ActionType `json:"type"`

	// Bid addresses the target element for CLICK/TYPE/SELECT. Negative when
	// the action has no element target.
	Bid int `json:"bid"`

	Text      string `json:"text,omitempty"`      // Text to type or option label to select.
	URL       string `json:"url,omitempty"`       // Target for NAVIGATE.
	Direction string `json:"direction,omitempty"` // "up" or "down" for SCROLL.

	// Rationale is the planner's short justification; kept for the dataset.
	Rationale string    `json:"rationale,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision wraps the planner's chosen action with its reasoning and the
// completion verdict.
type Decision struct {
	Action            Action `json:"action"`
	Reasoning         string `json:"reasoning,omitempty"`
	ObjectiveComplete bool   `json:"objective_complete"`
}

// ActionStatus reports how executing an action went.
type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "SUCCESS"
	ActionStatusFailure ActionStatus = "FAILURE"
	ActionStatusSkipped ActionStatus = "SKIPPED"
)

// ActionResult is the outcome of executing one action, including the
// resolution strategy that finally worked and the errors of the strategies
// tried before it.
type ActionResult struct {
	ActionID string       `json:"action_id"`
	Status   ActionStatus `json:"status"`

	// Strategy names the fallback tier that succeeded ("bid", "role-label",
	// "label", "name", "id", "text", "coordinates").
	Strategy string `json:"strategy,omitempty"`

	// Attempts collects the per-strategy failure messages accumulated before
	// success or final failure.
	Attempts []string `json:"attempts,omitempty"`

	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

// StepRecord pairs an executed action with the state it was decided against.
// The engine appends one per loop iteration; the planner reads the tail as
// its short-term history.
type StepRecord struct {
	Index   int          `json:"index"`
	StateID string       `json:"state_id"`
	Action  Action       `json:"action"`
	Result  ActionResult `json:"result"`
}
