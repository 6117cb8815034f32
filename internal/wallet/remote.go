package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/pkg/profilestore"
)

// Remote delegates the ledger to the hosted profile service.
type Remote struct {
	client *profilestore.Client
}

// NewRemote wraps a profile service client.
func NewRemote(client *profilestore.Client) *Remote {
	return &Remote{client: client}
}

// remoteError keeps protocol rejections distinct from transport failures.
func remoteError(op string, err error) error {
	var apiErr *profilestore.APIError
	if errors.As(err, &apiErr) && apiErr.Code == profilestore.ErrInvalidAmount {
		return fmt.Errorf("%w: %s", domain.ErrInvalidBet, apiErr.Message)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrLedgerUnavailable, op, err)
}

// RemoveCoins implements Ledger.
func (r *Remote) RemoveCoins(ctx context.Context, playerID string, amount int64) (bool, error) {
	if err := validAmount(amount); err != nil {
		return false, err
	}
	res, err := r.client.RemoveCoins(ctx, &profilestore.CoinsRequest{PlayerID: playerID, Amount: amount})
	if err != nil {
		var apiErr *profilestore.APIError
		if errors.As(err, &apiErr) && apiErr.Code == profilestore.ErrInsufficientBalance {
			return false, nil
		}
		return false, remoteError("remove coins", err)
	}
	return res.Removed, nil
}

// AddCoins implements Ledger.
func (r *Remote) AddCoins(ctx context.Context, playerID string, amount int64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if _, err := r.client.AddCoins(ctx, &profilestore.CoinsRequest{PlayerID: playerID, Amount: amount}); err != nil {
		return remoteError("add coins", err)
	}
	return nil
}

// Balance implements Ledger.
func (r *Remote) Balance(ctx context.Context, playerID string) (int64, error) {
	res, err := r.client.GetBalance(ctx, playerID)
	if err != nil {
		return 0, remoteError("balance", err)
	}
	return res.Balance, nil
}
