package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetMarkets fetches all registered markets.
func (c *Client) GetMarkets(ctx context.Context) ([]Market, error) {
	var resp MarketsResponse
	if err := c.get(ctx, "/v1/markets", nil, &resp); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	return resp.Markets, nil
}

// GetMarket fetches a single market by address.
func (c *Client) GetMarket(ctx context.Context, market string) (*Market, error) {
	var resp Market
	path := "/v1/markets/" + url.PathEscape(market)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get market %s: %w", market, err)
	}
	return &resp, nil
}

// GetOrderbook fetches the aggregated orderbook for a market. depth limits
// the number of levels per side; zero requests the server default.
func (c *Client) GetOrderbook(ctx context.Context, market string, depth int) (*Orderbook, error) {
	query := url.Values{}
	if depth > 0 {
		query.Set("depth", strconv.Itoa(depth))
	}

	var resp Orderbook
	path := "/v1/markets/" + url.PathEscape(market) + "/orderbook"
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", market, err)
	}
	return &resp, nil
}

// GetTrades fetches recent trades for a market, newest first. opts may be
// nil for server defaults.
func (c *Client) GetTrades(ctx context.Context, market string, opts *GetTradesOptions) (*TradesResponse, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Limit > 0 {
			query.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Cursor != "" {
			query.Set("cursor", opts.Cursor)
		}
	}

	var resp TradesResponse
	path := "/v1/markets/" + url.PathEscape(market) + "/trades"
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("get trades %s: %w", market, err)
	}
	return &resp, nil
}

// GetCandles fetches OHLCV candles for a market.
func (c *Client) GetCandles(ctx context.Context, market string, opts *GetCandlesOptions) (*CandlesResponse, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Interval != "" {
			query.Set("interval", opts.Interval)
		}
		if opts.Start > 0 {
			query.Set("start", strconv.FormatInt(opts.Start, 10))
		}
		if opts.End > 0 {
			query.Set("end", strconv.FormatInt(opts.End, 10))
		}
		if opts.Limit > 0 {
			query.Set("limit", strconv.Itoa(opts.Limit))
		}
	}

	var resp CandlesResponse
	path := "/v1/markets/" + url.PathEscape(market) + "/candles"
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("get candles %s: %w", market, err)
	}
	return &resp, nil
}

// GetHealth checks API availability.
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("get health: %w", err)
	}
	return &resp, nil
}
