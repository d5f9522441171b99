package perception

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/resolve"
)

// captureCenters reads the viewport center of every bound element in one
// evaluation and stores it on the matching record. Centers anchor the
// executor's coordinate fallback, so a read failure only costs that fallback;
// the cycle continues without centers.
func (b *StateBuilder) captureCenters(ctx context.Context, surface PageSurface, records []schemas.ElementRecord) {
	expr := fmt.Sprintf(centersScript, resolve.BidAttr)

	var centers map[string]schemas.Point
	if err := surface.Evaluate(ctx, expr, &centers); err != nil {
		b.log.Debug("element centers unavailable", zap.Error(err))
		return
	}

	for i := range records {
		if p, ok := centers[fmt.Sprintf("%d", records[i].Bid)]; ok {
			c := p
			records[i].Center = &c
		}
	}
}

// centersScript maps each bound bid to the center of its client rect. Nodes
// with no rendered box are omitted so the executor never aims at (0, 0).
const centersScript = `(() => {
  const out = {};
  for (const el of document.querySelectorAll('[%[1]s]')) {
    const rect = el.getBoundingClientRect();
    if (rect.width === 0 && rect.height === 0) continue;
    out[el.getAttribute('%[1]s')] = {x: rect.left + rect.width / 2, y: rect.top + rect.height / 2};
  }
  return out;
})()`
