// internal/blockchain/rpc/client.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/logger"
)

const (
	defaultRetryDelay = 500 * time.Millisecond
	defaultReqTimeout = 10 * time.Second
)

// ErrNoRPCNodes is returned by NewClient for an empty URL list.
var ErrNoRPCNodes = errors.New("no RPC nodes available")

// Client rotates Solana RPC calls over a list of nodes, moving to the next
// node after a failed attempt.
type Client struct {
	nodes      []*solanarpc.Client
	urls       []string
	current    int
	mu         sync.Mutex
	logger     *zap.Logger
	attempts   int
	retryDelay time.Duration
	reqTimeout time.Duration
}

// NewClient creates a client over urls. Every node gets one attempt per call.
func NewClient(urls []string, logger *zap.Logger) (*Client, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}

	nodes := make([]*solanarpc.Client, len(urls))
	for i, url := range urls {
		nodes[i] = solanarpc.New(url)
	}

	return &Client{
		nodes:      nodes,
		urls:       urls,
		logger:     logger.Named("rpc"),
		attempts:   len(urls),
		retryDelay: defaultRetryDelay,
		reqTimeout: defaultReqTimeout,
	}, nil
}

func (c *Client) next() (*solanarpc.Client, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, url := c.nodes[c.current], c.urls[c.current]
	c.current = (c.current + 1) % len(c.nodes)
	return node, url
}

// ExecuteWithRetry runs operation against successive nodes until one succeeds,
// every node was tried once, or ctx ends.
func (c *Client) ExecuteWithRetry(ctx context.Context, method string, operation func(context.Context, *solanarpc.Client) error) error {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		node, url := c.next()
		reqCtx, cancel := context.WithTimeout(ctx, c.reqTimeout)
		err := operation(reqCtx, node)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		c.logger.Debug("RPC request failed, trying next node",
			zap.String("method", method),
			zap.String("node", logger.ShortenAddress(url)),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < c.attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return fmt.Errorf("%s: all %d RPC attempts failed: %w", method, c.attempts, lastErr)
}

// GetTokenAccountsByOwner lists the token accounts of owner.
func (c *Client) GetTokenAccountsByOwner(
	ctx context.Context,
	owner solana.PublicKey,
	conf *solanarpc.GetTokenAccountsConfig,
	opts *solanarpc.GetTokenAccountsOpts,
) (*solanarpc.GetTokenAccountsResult, error) {
	var result *solanarpc.GetTokenAccountsResult
	err := c.ExecuteWithRetry(ctx, "getTokenAccountsByOwner", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		result, err = node.GetTokenAccountsByOwner(ctx, owner, conf, opts)
		return err
	})
	return result, err
}

// SendTransactionWithOpts submits a signed transaction. Resending the same
// signed transaction to another node cannot execute it twice.
func (c *Client) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error) {
	var signature solana.Signature
	err := c.ExecuteWithRetry(ctx, "sendTransaction", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		signature, err = node.SendTransactionWithOpts(ctx, tx, opts)
		return err
	})
	return signature, err
}

// GetSignatureStatuses reads the processing status of signatures from the
// node's recent status cache.
func (c *Client) GetSignatureStatuses(ctx context.Context, searchHistory bool, signatures ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error) {
	var result *solanarpc.GetSignatureStatusesResult
	err := c.ExecuteWithRetry(ctx, "getSignatureStatuses", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		result, err = node.GetSignatureStatuses(ctx, searchHistory, signatures...)
		return err
	})
	return result, err
}

// Close releases the node connections.
func (c *Client) Close() error {
	var errs []error
	for _, node := range c.nodes {
		if err := node.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
