package resolve

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Evaluator runs an expression inside the live document and decodes its JSON
// result into out.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

// Injector applies a binding pass to the live document. Stale clearing and
// binding run inside one evaluation, so no page mutation can interleave with
// the two phases.
type Injector struct {
	log *zap.Logger
}

// NewInjector wires the injector with its logger.
func NewInjector(log *zap.Logger) *Injector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Injector{log: log.Named("injector")}
}

// Apply executes the binding pass for req against the live document behind
// ev. An evaluation failure degrades the pass: every entry is reported
// unbound, the error is returned, and the caller is expected to continue the
// cycle with extraction-only data.
func (inj *Injector) Apply(ctx context.Context, ev Evaluator, req schemas.BindRequest) (schemas.BindReport, error) {
	entries := req.Entries
	if entries == nil {
		entries = []schemas.BindEntry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fullyUnmatched(req), fmt.Errorf("encoding bind entries: %w", err)
	}

	expr := fmt.Sprintf(injectScript, BidAttr, payload)
	var report schemas.BindReport
	if err := ev.Evaluate(ctx, expr, &report); err != nil {
		inj.log.Warn("binding evaluation failed, cycle continues unbound", zap.Error(err))
		return fullyUnmatched(req), fmt.Errorf("binding evaluation: %w", err)
	}

	inj.log.Debug("binding pass applied",
		zap.Int("bound", report.Bound),
		zap.Int("already_bound", report.AlreadyBound),
		zap.Int("unmatched", len(report.Unmatched)),
		zap.Int("invalid_selectors", report.InvalidSelectors),
		zap.Int("cleared", report.Cleared),
	)
	return report, nil
}

func fullyUnmatched(req schemas.BindRequest) schemas.BindReport {
	var report schemas.BindReport
	for _, entry := range req.Entries {
		report.Unmatched = append(report.Unmatched, unmatched(entry, schemas.UnmatchedEvalFailed, nil))
	}
	return report
}

// injectScript is the in-page side of Resolve. Phase one clears markers from
// nodes that left the document or lost their rendered box; it deliberately
// keeps markers on connected, visible nodes even when a framework may have
// recycled the node for different content, since a wrong keep is corrected by
// the next cycle while a wrong clear breaks a still-valid binding. Phase two
// binds in entry order, first unique unclaimed match wins.
const injectScript = `(() => {
  const ATTR = %q;
  const entries = %s;
  const report = {bound: 0, already_bound: 0, bindings: [], unmatched: [], invalid_selectors: 0, cleared: 0};

  const visible = (el) => {
    if (!el.isConnected) return false;
    if (el === document.body || el === document.documentElement) return true;
    const style = window.getComputedStyle(el);
    if (style.display === 'none' || style.visibility === 'hidden') return false;
    const rect = el.getBoundingClientRect();
    return rect.width > 0 || rect.height > 0 || el.offsetParent !== null;
  };

  for (const el of Array.from(document.querySelectorAll('[' + ATTR + ']'))) {
    if (!visible(el)) {
      el.removeAttribute(ATTR);
      report.cleared++;
    }
  }

  const taken = new Set();
  for (const el of document.querySelectorAll('[' + ATTR + ']')) {
    taken.add(el.getAttribute(ATTR));
  }

  for (const entry of entries) {
    const bid = String(entry.bid);
    if (taken.has(bid)) {
      report.already_bound++;
      continue;
    }
    const selectors = entry.selectors || [];
    if (selectors.length === 0) {
      report.unmatched.push({bid: entry.bid, tag: entry.tag || '', label: entry.label || '', reason: 'no-selectors', tried: []});
      continue;
    }

    const tried = [];
    let claimedHit = false;
    let ambiguous = false;
    let bound = false;
    for (const sel of selectors) {
      let matches;
      try {
        matches = document.querySelectorAll(sel);
      } catch (e) {
        report.invalid_selectors++;
        continue;
      }
      tried.push(sel);
      if (matches.length !== 1) {
        if (matches.length > 1) ambiguous = true;
        continue;
      }
      const node = matches[0];
      if (node.hasAttribute(ATTR)) {
        claimedHit = true;
        continue;
      }
      node.setAttribute(ATTR, bid);
      taken.add(bid);
      report.bound++;
      report.bindings.push({bid: entry.bid, selector: sel});
      bound = true;
      break;
    }
    if (!bound) {
      const reason = claimedHit ? 'all-claimed' : (ambiguous ? 'ambiguous' : 'no-match');
      report.unmatched.push({bid: entry.bid, tag: entry.tag || '', label: entry.label || '', reason: reason, tried: tried});
    }
  }
  return report;
})()`
