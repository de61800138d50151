package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GetOrders fetches a user's open orders. market optionally narrows the
// result to one market.
func (c *Client) GetOrders(ctx context.Context, owner, market string) ([]Order, error) {
	query := url.Values{}
	if market != "" {
		query.Set("market", market)
	}

	var resp OrdersResponse
	path := "/v1/accounts/" + url.PathEscape(owner) + "/orders"
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("get orders for %s: %w", owner, err)
	}
	return resp.Orders, nil
}

// GetUserTrades fetches a user's trade history, newest first.
func (c *Client) GetUserTrades(ctx context.Context, owner, market string, limit int) (*TradesResponse, error) {
	query := url.Values{}
	if market != "" {
		query.Set("market", market)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp TradesResponse
	path := "/v1/accounts/" + url.PathEscape(owner) + "/trades"
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("get trades for %s: %w", owner, err)
	}
	return &resp, nil
}

// GetBalances fetches a user's per-market balances.
func (c *Client) GetBalances(ctx context.Context, owner string) (*BalancesResponse, error) {
	var resp BalancesResponse
	path := "/v1/accounts/" + url.PathEscape(owner) + "/balances"
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get balances for %s: %w", owner, err)
	}
	return &resp, nil
}
