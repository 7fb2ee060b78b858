// internal/dex/pumpportal/executor.go
package pumpportal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/logger"
	"github.com/rovshanmuradov/pumpbot/internal/wallet"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultConfirmTimeout = 30 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
	maxTxBytes            = 1 << 16
)

var (
	// ErrNotConfirmed means the transaction was sent but the cluster did not
	// confirm it in time. It may still land later.
	ErrNotConfirmed = errors.New("transaction not confirmed")
	// ErrTransactionFailed means the transaction landed with an execution error.
	ErrTransactionFailed = errors.New("transaction failed on-chain")
)

// TransactionSender is the subset of the Solana RPC client used to submit
// trades and follow them to confirmation.
type TransactionSender interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Executor builds trades through the PumpPortal local-transaction API, signs
// them with the bot wallet and sends them over RPC.
type Executor struct {
	endpoint string
	http     *http.Client
	wallet   *wallet.Wallet
	sender   TransactionSender
	logger   *zap.Logger

	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// NewExecutor creates a trade executor posting to endpoint. A trade counts as
// executed only once its transaction is confirmed within confirmTimeout.
func NewExecutor(endpoint string, w *wallet.Wallet, sender TransactionSender, confirmTimeout time.Duration, logger *zap.Logger) *Executor {
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return &Executor{
		endpoint:       endpoint,
		http:           &http.Client{Timeout: defaultTimeout},
		wallet:         w,
		sender:         sender,
		logger:         logger.Named("pumpportal"),
		confirmTimeout: confirmTimeout,
		pollInterval:   defaultPollInterval,
	}
}

// Submit executes intent once and waits for its confirmation. Failures are
// reported in the result, never panicked.
func (e *Executor) Submit(ctx context.Context, intent domain.TradeIntent) domain.TradeResult {
	tx, err := e.buildTransaction(ctx, intent)
	if err != nil {
		return domain.TradeResult{Err: fmt.Errorf("build %s: %w", intent, err)}
	}

	// The API returns placeholder signatures; sign from scratch.
	tx.Signatures = nil
	if err := e.wallet.SignTransaction(tx); err != nil {
		return domain.TradeResult{Err: fmt.Errorf("sign %s: %w", intent, err)}
	}

	sig, err := e.sender.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return domain.TradeResult{Err: fmt.Errorf("send %s: %w", intent, err)}
	}

	e.logger.Info("Trade submitted",
		zap.String("intent_id", intent.ID),
		zap.String("action", string(intent.Action)),
		zap.String("token", intent.TokenID),
		zap.String("amount", intent.Quantity.String()),
		zap.String("signature", logger.ShortenSignature(sig.String())))

	if err := e.awaitConfirmation(ctx, sig); err != nil {
		return domain.TradeResult{Reference: sig.String(), Err: fmt.Errorf("%s: %w", intent, err)}
	}

	e.logger.Info("Trade confirmed",
		zap.String("intent_id", intent.ID),
		zap.String("token", intent.TokenID),
		zap.String("signature", logger.ShortenSignature(sig.String())))
	return domain.TradeResult{OK: true, Reference: sig.String()}
}

// awaitConfirmation polls the signature status until the cluster reports the
// transaction confirmed or finalized. A status carrying an execution error
// fails immediately; running out of time fails with ErrNotConfirmed.
func (e *Executor) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w within %v: %w", ErrNotConfirmed, e.confirmTimeout, ctx.Err())
		case <-ticker.C:
		}

		res, err := e.sender.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			e.logger.Debug("Signature status unavailable",
				zap.String("signature", logger.ShortenSignature(sig.String())),
				zap.Error(err))
			continue
		}
		if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
			continue
		}

		status := res.Value[0]
		if status.Err != nil {
			return fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
		}
		switch status.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return nil
		}
	}
}

func (e *Executor) buildTransaction(ctx context.Context, intent domain.TradeIntent) (*solana.Transaction, error) {
	form := url.Values{}
	form.Set("publicKey", e.wallet.PublicKey.String())
	form.Set("action", string(intent.Action))
	form.Set("mint", intent.TokenID)
	form.Set("amount", intent.Quantity.String())
	form.Set("denominatedInSol", strconv.FormatBool(intent.DenominatedInSol))
	form.Set("slippage", strconv.FormatFloat(intent.Slippage, 'f', -1, 64))
	form.Set("priorityFee", strconv.FormatFloat(intent.PriorityFee, 'f', -1, 64))
	form.Set("pool", intent.Pool)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trade API status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}
