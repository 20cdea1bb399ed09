package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"pump-dump-alerts/internal/detector"
)

// MinuteVolume is the quote volume of one 1m kline.
type MinuteVolume struct {
	Bucket time.Time
	Volume decimal.Decimal
}

// MinuteVolumes fetches the trailing bars of 1m klines for symbol and
// returns their quote volumes, oldest first. The last bar is the
// in-progress minute; the tracker overwrites it on the next poll.
func (c *Client) MinuteVolumes(ctx context.Context, symbol string, bars int) ([]MinuteVolume, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	klines, err := c.cli.NewKlinesService().
		Symbol(symbol).
		Interval("1m").
		Limit(bars).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch 1m klines for %s: %w", symbol, err)
	}

	out := make([]MinuteVolume, 0, len(klines))
	for _, k := range klines {
		volume, err := decimal.NewFromString(k.QuoteAssetVolume)
		if err != nil {
			return nil, fmt.Errorf("parse quote volume for %s: %w", symbol, err)
		}
		out = append(out, MinuteVolume{
			Bucket: time.UnixMilli(k.OpenTime),
			Volume: volume,
		})
	}
	return out, nil
}

// OrderBook combines the book ticker (best bid/ask) and the depth
// endpoint (top bid levels) into a single snapshot.
func (c *Client) OrderBook(ctx context.Context, symbol string, depthLimit int) (detector.OrderBookSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tickers, err := c.cli.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return detector.OrderBookSnapshot{}, fmt.Errorf("fetch book ticker for %s: %w", symbol, err)
	}
	if len(tickers) == 0 {
		return detector.OrderBookSnapshot{}, fmt.Errorf("no book ticker for %s", symbol)
	}

	bestBid, err := decimal.NewFromString(tickers[0].BidPrice)
	if err != nil {
		return detector.OrderBookSnapshot{}, fmt.Errorf("parse best bid for %s: %w", symbol, err)
	}
	bestAsk, err := decimal.NewFromString(tickers[0].AskPrice)
	if err != nil {
		return detector.OrderBookSnapshot{}, fmt.Errorf("parse best ask for %s: %w", symbol, err)
	}

	depth, err := c.cli.NewDepthService().Symbol(symbol).Limit(depthLimit).Do(ctx)
	if err != nil {
		return detector.OrderBookSnapshot{}, fmt.Errorf("fetch depth for %s: %w", symbol, err)
	}

	bids, err := convertLevels(depth.Bids)
	if err != nil {
		return detector.OrderBookSnapshot{}, fmt.Errorf("parse depth for %s: %w", symbol, err)
	}

	return detector.OrderBookSnapshot{
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		Bids:      bids,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func convertLevels(levels []futures.Bid) ([]detector.BookLevel, error) {
	out := make([]detector.BookLevel, 0, len(levels))
	for _, level := range levels {
		price, err := decimal.NewFromString(level.Price)
		if err != nil {
			return nil, err
		}
		quantity, err := decimal.NewFromString(level.Quantity)
		if err != nil {
			return nil, err
		}
		out = append(out, detector.BookLevel{Price: price, Quantity: quantity})
	}
	return out, nil
}

// OpenInterest fetches the current open interest (contracts) for symbol.
func (c *Client) OpenInterest(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	oi, err := c.cli.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fetch open interest for %s: %w", symbol, err)
	}

	value, err := decimal.NewFromString(oi.OpenInterest)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse open interest for %s: %w", symbol, err)
	}
	return value, nil
}
