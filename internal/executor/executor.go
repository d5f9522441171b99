// Package executor turns planner actions into page interactions. Element
// targets are resolved bid-first against the markers the injector planted;
// when a marker is gone the executor walks a graded fallback chain and ends,
// for clicks, at the coordinates captured with the perception state.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/resolve"
	"github.com/xkilldash9x/percept-cli/internal/selector"
)

// Page is the interaction surface the executor drives. *browser.Session
// satisfies it; tests substitute a scripted fake.
type Page interface {
	Click(ctx context.Context, sel string) error
	ClickAt(ctx context.Context, x, y float64) error
	Type(ctx context.Context, sel, text string) error
	SendKeys(ctx context.Context, text string) error
	SelectOption(ctx context.Context, sel, option string) error
	ScrollPage(ctx context.Context, direction string) error
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, expr string, out any) error
	Sleep(ctx context.Context, d time.Duration) error
}

// Executor resolves and performs one action at a time. It holds no page
// state of its own; everything it needs to find a target rides on the
// perception state the action was decided against.
type Executor struct {
	log *zap.Logger
}

// New wires an executor with its logger.
func New(log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{log: log.Named("executor")}
}

// target is one resolution tier: a named strategy with the selector it would
// use. Coordinate and text tiers carry no selector and are handled apart.
type target struct {
	strategy string
	sel      string
}

// Execute performs action against page. Element actions resolve through the
// fallback chain; every tier that fails leaves its error in the result's
// attempt list so a failed action explains itself. Execution failures are
// results, not errors: the engine decides whether to continue.
func (e *Executor) Execute(ctx context.Context, page Page, state *schemas.PerceptionState, action schemas.Action) schemas.ActionResult {
	started := time.Now()
	res := schemas.ActionResult{ActionID: action.ID}

	var err error
	switch action.Type {
	case schemas.ActionClick:
		err = e.click(ctx, page, state, action, &res)
	case schemas.ActionTypeText:
		err = e.typeText(ctx, page, state, action, &res)
	case schemas.ActionSelect:
		err = e.selectOption(ctx, page, state, action, &res)
	case schemas.ActionScroll:
		err = page.ScrollPage(ctx, action.Direction)
		res.Strategy = "scroll"
	case schemas.ActionNavigate:
		err = page.Navigate(ctx, action.URL)
		res.Strategy = "navigate"
	case schemas.ActionWait:
		err = page.Sleep(ctx, time.Second)
		res.Strategy = "wait"
	case schemas.ActionDone, schemas.ActionFail:
		res.Status = schemas.ActionStatusSkipped
		res.Duration = time.Since(started)
		res.FinishedAt = time.Now().UTC()
		return res
	default:
		err = fmt.Errorf("unsupported action type %q", action.Type)
	}

	res.Status = schemas.ActionStatusSuccess
	if err != nil {
		res.Status = schemas.ActionStatusFailure
		res.Error = err.Error()
		e.log.Warn("action failed",
			zap.String("action", string(action.Type)),
			zap.Int("bid", action.Bid),
			zap.Strings("attempts", res.Attempts),
			zap.Error(err),
		)
	}
	res.Duration = time.Since(started)
	res.FinishedAt = time.Now().UTC()
	return res
}

// click walks the chain: bid marker, attribute tiers, visible text, and the
// recorded center as the last resort.
func (e *Executor) click(ctx context.Context, page Page, state *schemas.PerceptionState, action schemas.Action, res *schemas.ActionResult) error {
	rec := state.ElementByBid(action.Bid)
	if rec == nil {
		return fmt.Errorf("no element with bid %d in current state", action.Bid)
	}

	for _, t := range fallbackTargets(rec) {
		if err := page.Click(ctx, t.sel); err != nil {
			res.Attempts = append(res.Attempts, t.strategy+": "+err.Error())
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		res.Strategy = t.strategy
		return nil
	}

	if clicked, err := e.clickByText(ctx, page, rec); err == nil && clicked {
		res.Strategy = "text"
		return nil
	} else if err != nil {
		res.Attempts = append(res.Attempts, "text: "+err.Error())
	}

	if rec.Center != nil {
		if err := page.ClickAt(ctx, rec.Center.X, rec.Center.Y); err != nil {
			res.Attempts = append(res.Attempts, "coordinates: "+err.Error())
			return fmt.Errorf("all strategies failed for bid %d", action.Bid)
		}
		res.Strategy = "coordinates"
		return nil
	}
	return fmt.Errorf("all strategies failed for bid %d and no coordinates recorded", action.Bid)
}

// typeText resolves like click but types; the coordinate tier clicks to focus
// and sends the keys to whatever took it.
func (e *Executor) typeText(ctx context.Context, page Page, state *schemas.PerceptionState, action schemas.Action, res *schemas.ActionResult) error {
	rec := state.ElementByBid(action.Bid)
	if rec == nil {
		return fmt.Errorf("no element with bid %d in current state", action.Bid)
	}

	for _, t := range fallbackTargets(rec) {
		if err := page.Type(ctx, t.sel, action.Text); err != nil {
			res.Attempts = append(res.Attempts, t.strategy+": "+err.Error())
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		res.Strategy = t.strategy
		return nil
	}

	if rec.Center != nil {
		if err := page.ClickAt(ctx, rec.Center.X, rec.Center.Y); err != nil {
			res.Attempts = append(res.Attempts, "coordinates: "+err.Error())
			return fmt.Errorf("all strategies failed for bid %d", action.Bid)
		}
		if err := page.SendKeys(ctx, action.Text); err != nil {
			return fmt.Errorf("typing after coordinate focus: %w", err)
		}
		res.Strategy = "coordinates"
		return nil
	}
	return fmt.Errorf("all strategies failed for bid %d and no coordinates recorded", action.Bid)
}

func (e *Executor) selectOption(ctx context.Context, page Page, state *schemas.PerceptionState, action schemas.Action, res *schemas.ActionResult) error {
	rec := state.ElementByBid(action.Bid)
	if rec == nil {
		return fmt.Errorf("no element with bid %d in current state", action.Bid)
	}

	for _, t := range fallbackTargets(rec) {
		if err := page.SelectOption(ctx, t.sel, action.Text); err != nil {
			res.Attempts = append(res.Attempts, t.strategy+": "+err.Error())
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		res.Strategy = t.strategy
		return nil
	}
	return fmt.Errorf("all strategies failed for bid %d", action.Bid)
}

// fallbackTargets orders the selector tiers for one record: the live bid
// marker, then role+label, label, name, id. Tiers whose attribute is absent
// are skipped.
func fallbackTargets(rec *schemas.ElementRecord) []target {
	out := []target{{strategy: "bid", sel: selector.AttrEquals(resolve.BidAttr, fmt.Sprintf("%d", rec.Bid))}}

	label := ""
	if rec.AriaLabel != nil {
		label = *rec.AriaLabel
	}
	if label != "" && rec.Role != nil && *rec.Role != "" {
		out = append(out, target{
			strategy: "role-label",
			sel:      selector.AttrEquals("role", *rec.Role) + selector.AttrEquals("aria-label", label),
		})
	}
	if label != "" {
		out = append(out, target{strategy: "label", sel: rec.Tag + selector.AttrEquals("aria-label", label)})
	}
	if rec.Name != nil && *rec.Name != "" {
		out = append(out, target{strategy: "name", sel: rec.Tag + selector.AttrEquals("name", *rec.Name)})
	}
	if rec.HTMLID != nil && *rec.HTMLID != "" {
		out = append(out, target{strategy: "id", sel: selector.AttrEquals("id", *rec.HTMLID)})
	}
	return out
}

// clickByText clicks the first anchor or button whose trimmed text equals the
// record's. Text has no CSS form, so this tier runs as one page evaluation.
func (e *Executor) clickByText(ctx context.Context, page Page, rec *schemas.ElementRecord) (bool, error) {
	if rec.Text == nil || *rec.Text == "" {
		return false, nil
	}
	if rec.Tag != "a" && rec.Tag != "button" {
		return false, nil
	}
	wanted := strings.TrimSuffix(*rec.Text, "...")

	expr := fmt.Sprintf(`(() => {
		const wanted = %q;
		for (const el of document.querySelectorAll(%q)) {
			const text = (el.textContent || '').trim();
			if (text === wanted || (wanted.length >= 10 && text.startsWith(wanted))) {
				el.click();
				return true;
			}
		}
		return false;
	})()`, wanted, rec.Tag)

	var clicked bool
	if err := page.Evaluate(ctx, expr, &clicked); err != nil {
		return false, fmt.Errorf("text click evaluation: %w", err)
	}
	return clicked, nil
}
