// Package planner decides the next action for an objective from a perception
// state. The model sees the compact element rendering and the visible page
// text, never raw HTML; it answers with a single JSON decision addressing
// elements by bid.
package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newActionID is a package var so tests can pin generated ids.
var newActionID = uuid.NewString

// historyWindow is how many trailing steps ride along in the prompt.
const historyWindow = 5

// Planner asks the model for the next step toward an objective.
type Planner struct {
	client      schemas.LLMClient
	maxAttempts int
	log         *zap.Logger
}

// New wires a planner around an LLM client.
func New(client schemas.LLMClient, cfg config.LLMConfig, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Planner{
		client:      client,
		maxAttempts: attempts,
		log:         log.Named("planner"),
	}
}

// Decide produces the next action for objective given the current state and
// the trailing step history. Malformed model output is retried up to the
// configured attempt count; the error after the last attempt carries the
// parse failure.
func (p *Planner) Decide(ctx context.Context, objective string, state *schemas.PerceptionState, history []schemas.StepRecord) (*schemas.Decision, error) {
	prompt := p.buildPrompt(objective, state, history)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		raw, err := p.client.GenerateText(ctx, prompt)
		if err != nil {
			lastErr = err
			p.log.Warn("model call failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		decision, err := parseDecision(raw)
		if err != nil {
			lastErr = err
			p.log.Warn("model output unparsable",
				zap.Int("attempt", attempt),
				zap.String("output_preview", preview(raw, 200)),
				zap.Error(err),
			)
			continue
		}

		decision.Action.ID = newActionID()
		decision.Action.Timestamp = time.Now().UTC()
		p.log.Info("decision made",
			zap.String("action", string(decision.Action.Type)),
			zap.Int("bid", decision.Action.Bid),
			zap.Bool("objective_complete", decision.ObjectiveComplete),
		)
		return decision, nil
	}
	return nil, fmt.Errorf("planner failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// parseDecision salvages and decodes one decision from raw model output. An
// empty action type is treated as a refusal and mapped to FAIL so the engine
// always gets a terminal verdict rather than a zero value.
func parseDecision(raw string) (*schemas.Decision, error) {
	payload, ok := salvageJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var decision schemas.Decision
	if err := json.UnmarshalFromString(payload, &decision); err != nil {
		return nil, fmt.Errorf("decoding decision: %w", err)
	}

	switch decision.Action.Type {
	case schemas.ActionClick, schemas.ActionTypeText, schemas.ActionSelect,
		schemas.ActionScroll, schemas.ActionNavigate, schemas.ActionWait,
		schemas.ActionDone, schemas.ActionFail:
	case "":
		decision.Action.Type = schemas.ActionFail
		decision.Action.Rationale = "model returned no action"
	default:
		return nil, fmt.Errorf("unknown action type %q", decision.Action.Type)
	}
	return &decision, nil
}

// salvageJSON extracts the first JSON object from possibly fenced or noisy
// output. The scan is brace-depth based and string-aware, so braces inside
// string values do not end the object early.
func salvageJSON(raw string) (string, bool) {
	s := raw
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

const systemPreamble = `You control a web browser to accomplish an objective.
You see the page as a numbered list of interactive elements and its visible text.
Address elements strictly by their [bid] number.

Respond with exactly one JSON object:
{"action": {"type": "...", "bid": N, "text": "...", "url": "...", "direction": "...", "rationale": "..."},
 "reasoning": "...", "objective_complete": false}

Action types: CLICK (bid), TYPE (bid, text), SELECT (bid, text), SCROLL (direction up/down),
NAVIGATE (url), WAIT, DONE (objective finished), FAIL (objective impossible).
Use bid -1 for actions without an element target.`

// buildPrompt assembles the model input: preamble, objective, recent history,
// the compact element list, and the page text.
func (p *Planner) buildPrompt(objective string, state *schemas.PerceptionState, history []schemas.StepRecord) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nOBJECTIVE: ")
	b.WriteString(objective)

	if len(history) > 0 {
		tail := history
		if len(tail) > historyWindow {
			tail = tail[len(tail)-historyWindow:]
		}
		b.WriteString("\n\nPREVIOUS STEPS:\n")
		for _, step := range tail {
			fmt.Fprintf(&b, "%d. %s bid=%d %s -> %s\n",
				step.Index, step.Action.Type, step.Action.Bid, step.Action.Text, step.Result.Status)
		}
	}

	fmt.Fprintf(&b, "\nCURRENT PAGE: %s — %s\n", state.Title, state.URL)
	b.WriteString("\nINTERACTIVE ELEMENTS:\n")
	b.WriteString(state.CompactString())
	b.WriteString("\n\nPAGE TEXT:\n")
	b.WriteString(state.VisibleText)
	b.WriteString("\n\nNext action as JSON:")
	return b.String()
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
