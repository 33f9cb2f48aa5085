package marketdata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aristath/cryptofolio/internal/clientdata"
	"github.com/aristath/cryptofolio/internal/domain"
)

// MaxHistoryDays bounds the length of a requested daily series
const MaxHistoryDays = 365

// GetHistoricalSeries returns up to days daily closes for symbol, oldest first.
// Series are cached for the history TTL; there is no stale window.
func (g *Gateway) GetHistoricalSeries(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	sym := domain.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	days = clampDays(days)
	key := fmt.Sprintf("%s:%d", sym, days)

	if series, ok := g.history.Get(key); ok {
		return series, nil
	}

	if series, ok := g.loadDurableSeries(key); ok {
		g.history.Set(key, series)
		return series, nil
	}

	ch := g.historyGroup.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.Timeout)
		defer cancel()

		series, err := g.provider.GetDailyCloses(fetchCtx, sym, days)
		if err != nil {
			return nil, err
		}

		g.history.Set(key, series)
		if g.store != nil {
			if err := g.store.Store(clientdata.TableHistoricalSeries, key, series, g.opts.HistoryTTL); err != nil {
				g.log.Warn().Err(err).Str("symbol", sym).Msg("Failed to persist historical series")
			}
		}
		return series, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("history lookup cancelled: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to fetch history for %s: %w", sym, res.Err)
		}
		return res.Val.([]domain.PricePoint), nil
	}
}

func (g *Gateway) loadDurableSeries(key string) ([]domain.PricePoint, bool) {
	if g.store == nil {
		return nil, false
	}

	data, err := g.store.GetIfFresh(clientdata.TableHistoricalSeries, key)
	if err != nil || data == nil {
		return nil, false
	}

	var series []domain.PricePoint
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, false
	}
	return series, true
}

func clampDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > MaxHistoryDays {
		return MaxHistoryDays
	}
	return days
}
