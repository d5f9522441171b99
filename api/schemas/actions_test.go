package schemas_test

import (
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/percept-cli/api/schemas"
)

func TestAction_JSONRoundTrip(t *testing.T) {
	a := schemas.Action{
		ID:        "act-1",
		Type:      schemas.ActionTypeText,
		Bid:       5,
		Text:      "jane@example.com",
		Rationale: "fill the email field",
		Timestamp: time.Date(2025, 11, 3, 12, 31, 0, 0, time.UTC),
	}

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var back schemas.Action
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, a, back)
}

func TestDecision_UnmarshalPlannerOutput(t *testing.T) {
	// The exact shape the planner asks the model for.
	raw := `{
		"action": {"type": "CLICK", "bid": 3, "rationale": "open the login form"},
		"reasoning": "The login link is the only path to the form.",
		"objective_complete": false
	}`

	var d schemas.Decision
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.Equal(t, schemas.ActionClick, d.Action.Type)
	assert.Equal(t, 3, d.Action.Bid)
	assert.False(t, d.ObjectiveComplete)
}

// Fuzz tests ensure decoding never panics on hostile or truncated model
// output.

func FuzzAction_UnmarshalJSON(f *testing.F) {
	f.Add([]byte(`{"id":"a-1","type":"CLICK","bid":2,"rationale":"go"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"type":123,"bid":"three"}`))
	f.Add([]byte("{\"type\":\"TYPE\",\"text\":\"\x00\"}"))

	f.Fuzz(func(t *testing.T, data []byte) {
		var a schemas.Action
		_ = json.Unmarshal(data, &a)
	})
}

func FuzzDecision_UnmarshalJSON(f *testing.F) {
	f.Add([]byte(`{"action":{"type":"DONE"},"objective_complete":true}`))
	f.Add([]byte(`{"action":"not-an-object"}`))
	f.Add([]byte(`{"objective_complete":"yes"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var d schemas.Decision
		_ = json.Unmarshal(data, &d)
	})
}
