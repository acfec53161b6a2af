// Package service provides business logic implementations.
package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWalletService_AmountValidation(t *testing.T) {
	svc := NewWalletService(nil)
	ctx := context.Background()

	_, err := svc.Credit(ctx, 1, 0, "daily_claim", "", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Credit(ctx, 1, -5, "daily_claim", "", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Debit(ctx, 1, 0, "shop_spend", "", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Debit(ctx, 1, -5, "shop_spend", "", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
