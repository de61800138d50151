package api

import (
	"context"
	"fmt"
)

// Transaction builders. Each returns an unsigned transaction for the caller
// to sign and submit; the API never holds keys.

// BuildPlaceOrder builds an unsigned place-order transaction.
func (c *Client) BuildPlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*Transaction, error) {
	var resp Transaction
	if err := c.post(ctx, "/v1/tx/place-order", req, &resp); err != nil {
		return nil, fmt.Errorf("build place order: %w", err)
	}
	return &resp, nil
}

// BuildCancelOrder builds an unsigned cancel-order transaction.
func (c *Client) BuildCancelOrder(ctx context.Context, req *CancelOrderRequest) (*Transaction, error) {
	var resp Transaction
	if err := c.post(ctx, "/v1/tx/cancel-order", req, &resp); err != nil {
		return nil, fmt.Errorf("build cancel order: %w", err)
	}
	return &resp, nil
}

// BuildDeposit builds an unsigned deposit transaction.
func (c *Client) BuildDeposit(ctx context.Context, req *DepositRequest) (*Transaction, error) {
	var resp Transaction
	if err := c.post(ctx, "/v1/tx/deposit", req, &resp); err != nil {
		return nil, fmt.Errorf("build deposit: %w", err)
	}
	return &resp, nil
}

// BuildWithdraw builds an unsigned withdraw transaction.
func (c *Client) BuildWithdraw(ctx context.Context, req *WithdrawRequest) (*Transaction, error) {
	var resp Transaction
	if err := c.post(ctx, "/v1/tx/withdraw", req, &resp); err != nil {
		return nil, fmt.Errorf("build withdraw: %w", err)
	}
	return &resp, nil
}
