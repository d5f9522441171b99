package perception

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/config"
	"github.com/xkilldash9x/percept-cli/internal/resolve"
	"github.com/xkilldash9x/percept-cli/internal/selector"
)

// PageSurface is the slice of live-document access a perception cycle needs:
// a snapshot read, page metadata, and script evaluation for binding.
type PageSurface interface {
	resolve.Evaluator
	OuterHTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
}

// StateBuilder runs full perception cycles: snapshot, extraction, selector
// synthesis, and live identifier binding. One builder serves one page surface
// at a time; cycles never overlap.
type StateBuilder struct {
	extractor *Extractor
	injector  *resolve.Injector
	log       *zap.Logger
}

// NewStateBuilder wires a builder from the perception settings.
func NewStateBuilder(cfg config.PerceptionConfig, log *zap.Logger) *StateBuilder {
	if log == nil {
		log = zap.NewNop()
	}
	return &StateBuilder{
		extractor: NewExtractor(cfg, log),
		injector:  resolve.NewInjector(log),
		log:       log.Named("state"),
	}
}

// BuildState produces one PerceptionState from the live page. Binding
// problems degrade the state instead of failing it: unmatched bids land in
// the diagnostics and the executor falls back to coordinates for them. When
// the live evaluation itself fails, the same binding algorithm runs against
// the parsed snapshot so the report still reflects selector quality. Only the
// inability to read the document at all is an error.
func (b *StateBuilder) BuildState(ctx context.Context, surface PageSurface) (*schemas.PerceptionState, error) {
	snapshot, err := surface.OuterHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading document snapshot: %w", err)
	}

	records, skipped := b.extractor.Extract(snapshot)
	for i := range records {
		records[i].Selectors = selector.Build(records[i])
	}

	report, bindErr := b.injector.Apply(ctx, surface, bindRequest(records))
	if bindErr != nil {
		// The live page refused the evaluation; resolve against the snapshot
		// instead so the report still says which selectors hold up. Nothing is
		// written into the DOM on this path and no centers exist.
		b.log.Warn("live binding unavailable, resolving against the snapshot", zap.Error(bindErr))
		if doc, perr := html.Parse(strings.NewReader(snapshot)); perr == nil {
			report = resolve.Resolve(doc, bindRequest(records))
		}
	} else if report.Bound+report.AlreadyBound > 0 {
		b.captureCenters(ctx, surface, records)
	}

	state := &schemas.PerceptionState{
		StateID:     uuid.NewString(),
		Elements:    records,
		VisibleText: b.extractor.VisibleText(snapshot),
		CapturedAt:  time.Now().UTC(),
		Diagnostics: schemas.StateDiagnostics{
			SkippedElements:  skipped,
			InvalidSelectors: report.InvalidSelectors,
		},
	}
	for _, u := range report.Unmatched {
		state.Diagnostics.UnboundBids = append(state.Diagnostics.UnboundBids, u.Bid)
	}

	if state.URL, err = surface.URL(ctx); err != nil {
		b.log.Warn("page url unavailable", zap.Error(err))
	}
	if state.Title, err = surface.Title(ctx); err != nil {
		b.log.Warn("page title unavailable", zap.Error(err))
	}
	if err := surface.Evaluate(ctx, `document.documentElement.lang || ""`, &state.Lang); err != nil {
		b.log.Debug("document language unavailable", zap.Error(err))
	}

	b.log.Info("perception state built",
		zap.String("state_id", state.StateID),
		zap.String("url", state.URL),
		zap.Int("elements", len(state.Elements)),
		zap.Int("bound", report.Bound),
		zap.Int("unbound", len(state.Diagnostics.UnboundBids)),
	)
	return state, nil
}

// bindRequest renders the ranked records as the injector's input, keeping the
// ranked order so higher-priority elements claim contested nodes first.
func bindRequest(records []schemas.ElementRecord) schemas.BindRequest {
	req := schemas.BindRequest{Entries: make([]schemas.BindEntry, 0, len(records))}
	for _, rec := range records {
		e := schemas.BindEntry{Bid: rec.Bid, Tag: rec.Tag, Selectors: rec.Selectors}
		if rec.Label != nil {
			e.Label = *rec.Label
		}
		req.Entries = append(req.Entries, e)
	}
	return req
}
