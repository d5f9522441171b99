package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/percept-cli/api/schemas"
)

func reportFixture() (*schemas.Run, []*schemas.PerceptionState) {
	text := "Submit order"
	label := "Order form"
	run := &schemas.Run{
		ID:        "run-1",
		Target:    "https://shop.example.com",
		Objective: "buy the thing",
		Status:    schemas.RunStatusCompleted,
		StartedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}
	states := []*schemas.PerceptionState{
		{
			StateID:    "st-1",
			URL:        "https://shop.example.com/checkout",
			Title:      "Checkout",
			CapturedAt: time.Date(2026, 8, 20, 9, 0, 5, 0, time.UTC),
			Elements: []schemas.ElementRecord{
				{Bid: 1, Tag: "button", Text: &text, Label: &label, Score: 65, Disabled: true},
				{Bid: 2, Tag: "input", Score: 60},
			},
		},
	}
	return run, states
}

func TestWriteJSON(t *testing.T) {
	run, states := reportFixture()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, run, states))

	out := buf.String()
	assert.Contains(t, out, `"id": "run-1"`)
	assert.Contains(t, out, `"state_id": "st-1"`)
	assert.Contains(t, out, `"Submit order"`)
}

func TestWriteXML(t *testing.T) {
	run, states := reportFixture()

	var buf bytes.Buffer
	require.NoError(t, WriteXML(&buf, run, states))

	// The output parses back and carries the element inventory.
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))

	root := doc.SelectElement("perception-run")
	require.NotNil(t, root)
	assert.Equal(t, "run-1", root.SelectAttrValue("id", ""))
	assert.Equal(t, "COMPLETED", root.SelectAttrValue("status", ""))

	stateEl := root.SelectElement("state")
	require.NotNil(t, stateEl)
	assert.Equal(t, "https://shop.example.com/checkout", stateEl.SelectAttrValue("url", ""))

	elements := stateEl.SelectElements("element")
	require.Len(t, elements, 2)
	assert.Equal(t, "1", elements[0].SelectAttrValue("bid", ""))
	assert.Equal(t, "Submit order", elements[0].Text())
	assert.Equal(t, "true", elements[0].SelectAttrValue("disabled", ""))
	assert.Equal(t, "", elements[1].SelectAttrValue("disabled", ""))
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	run, states := reportFixture()
	err := Write("yaml", "stdout", run, states)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}
