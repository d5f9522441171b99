// Package report exports a recorded run's perception states for humans and
// downstream tooling. JSON carries the full state documents; XML is a
// flattened element inventory for tools that want attributes, not documents.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/percept-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// document is the JSON export shape: the run header plus its states.
type document struct {
	Run    *schemas.Run               `json:"run"`
	States []*schemas.PerceptionState `json:"states"`
}

// WriteJSON writes the run and its states as one indented JSON document.
func WriteJSON(w io.Writer, run *schemas.Run, states []*schemas.PerceptionState) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(document{Run: run, States: states}); err != nil {
		return fmt.Errorf("encoding JSON report: %w", err)
	}
	return nil
}

// WriteXML writes the run as an XML element inventory:
//
//	<perception-run id="..." target="...">
//	  <state url="..." title="..." captured-at="...">
//	    <element bid="1" tag="button" score="65">...</element>
func WriteXML(w io.Writer, run *schemas.Run, states []*schemas.PerceptionState) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("perception-run")
	root.CreateAttr("id", run.ID)
	root.CreateAttr("target", run.Target)
	root.CreateAttr("status", string(run.Status))
	if run.Objective != "" {
		root.CreateAttr("objective", run.Objective)
	}

	for _, st := range states {
		stateEl := root.CreateElement("state")
		stateEl.CreateAttr("id", st.StateID)
		stateEl.CreateAttr("url", st.URL)
		stateEl.CreateAttr("title", st.Title)
		stateEl.CreateAttr("captured-at", st.CapturedAt.UTC().Format(time.RFC3339))

		for i := range st.Elements {
			writeElement(stateEl, &st.Elements[i])
		}
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("writing XML report: %w", err)
	}
	return nil
}

func writeElement(parent *etree.Element, rec *schemas.ElementRecord) {
	el := parent.CreateElement("element")
	el.CreateAttr("bid", strconv.Itoa(rec.Bid))
	el.CreateAttr("tag", rec.Tag)
	el.CreateAttr("score", strconv.Itoa(rec.Score))

	optAttr(el, "role", rec.Role)
	optAttr(el, "aria-label", rec.AriaLabel)
	optAttr(el, "name", rec.Name)
	optAttr(el, "id-attr", rec.HTMLID)
	optAttr(el, "label", rec.Label)
	if rec.Disabled {
		el.CreateAttr("disabled", "true")
	}
	if rec.Text != nil {
		el.SetText(*rec.Text)
	}
}

func optAttr(el *etree.Element, name string, v *string) {
	if v != nil && *v != "" {
		el.CreateAttr(name, *v)
	}
}

// Write renders the report in the named format ("json" or "xml") to path,
// with "" or "stdout" meaning standard output.
func Write(format, path string, run *schemas.Run, states []*schemas.PerceptionState) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "stdout" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating report file %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		return WriteJSON(w, run, states)
	case "xml":
		return WriteXML(w, run, states)
	default:
		return fmt.Errorf("unsupported report format %q (supported: json, xml)", format)
	}
}
