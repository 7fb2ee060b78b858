package wallet

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// TokenAccountsClient is the subset of the Solana RPC client used for holdings.
type TokenAccountsClient interface {
	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)
}

// Holdings lists the SPL token balances of a wallet.
type Holdings struct {
	client TokenAccountsClient
	owner  solana.PublicKey
	logger *zap.Logger
}

// NewHoldings creates a holdings provider for owner.
func NewHoldings(client TokenAccountsClient, owner solana.PublicKey, logger *zap.Logger) *Holdings {
	return &Holdings{
		client: client,
		owner:  owner,
		logger: logger.Named("holdings"),
	}
}

// ListHoldings returns mint -> raw token amount for every non-empty token
// account the wallet owns. Balances of several accounts for one mint are summed.
func (h *Holdings) ListHoldings(ctx context.Context) (map[string]uint64, error) {
	res, err := h.client.GetTokenAccountsByOwner(
		ctx,
		h.owner,
		&rpc.GetTokenAccountsConfig{ProgramId: solana.TokenProgramID.ToPointer()},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("get token accounts for %s: %w", h.owner, err)
	}

	holdings := make(map[string]uint64)
	if res == nil {
		return holdings, nil
	}
	for _, ta := range res.Value {
		if ta == nil || ta.Account.Data == nil {
			continue
		}
		var acc token.Account
		if err := bin.NewBinDecoder(ta.Account.Data.GetBinary()).Decode(&acc); err != nil {
			h.logger.Debug("Skipping undecodable token account",
				zap.String("account", ta.Pubkey.String()),
				zap.Error(err))
			continue
		}
		if acc.Amount == 0 {
			continue
		}
		holdings[acc.Mint.String()] += acc.Amount
	}
	return holdings, nil
}
