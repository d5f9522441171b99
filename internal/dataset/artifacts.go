package dataset

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/microcosm-cc/bluemonday"
)

// snapshotPolicy strips scripts, inline handlers and other active content
// from stored snapshots. Stored HTML is evidence, not something to re-render
// live, so losing interactivity is the point.
var snapshotPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	// UGC drops form controls; stored snapshots keep them since they are
	// exactly what perception extracted.
	p.AllowElements("button", "form", "input", "label", "option", "select", "textarea", "nav", "header", "footer")
	p.AllowAttrs("id", "name", "role", "type", "value", "placeholder", "aria-label", "aria-labelledby",
		"data-testid", "data-bid", "contenteditable", "disabled", "readonly").Globally()
	return p
}()

// brotliWriters recycles compressor state; a writer allocates large internal
// buffers and perception loops store one snapshot per cycle.
var brotliWriters = sync.Pool{
	New: func() any {
		return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression)
	},
}

// PrepareSnapshot renders page HTML into its storable form: sanitized when
// requested, then brotli-compressed.
func PrepareSnapshot(html string, sanitize bool) ([]byte, error) {
	if sanitize {
		html = snapshotPolicy.Sanitize(html)
	}

	var buf bytes.Buffer
	w := brotliWriters.Get().(*brotli.Writer)
	w.Reset(&buf)
	defer brotliWriters.Put(w)

	if _, err := w.Write([]byte(html)); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing snapshot compression: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot reverses PrepareSnapshot's compression.
func DecodeSnapshot(compressed []byte) (string, error) {
	raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return "", fmt.Errorf("decompressing snapshot: %w", err)
	}
	return string(raw), nil
}
