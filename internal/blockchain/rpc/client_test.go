package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// rpcNode answers every JSON-RPC call with an empty token account list, or
// with HTTP 500 when broken is set.
func rpcNode(t *testing.T, broken bool, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if broken {
			http.Error(w, "upstream unavailable", http.StatusInternalServerError)
			return
		}
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":{"context":{"slot":42},"value":[]}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, urls ...string) *Client {
	t.Helper()
	c, err := NewClient(urls, zaptest.NewLogger(t))
	require.NoError(t, err)
	c.retryDelay = 0
	return c
}

func TestNewClient_NoNodes(t *testing.T) {
	_, err := NewClient(nil, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrNoRPCNodes)
}

func TestClient_FailsOverToNextNode(t *testing.T) {
	var badHits, goodHits int32
	bad := rpcNode(t, true, &badHits)
	good := rpcNode(t, false, &goodHits)
	c := newTestClient(t, bad.URL, good.URL)

	res, err := c.GetTokenAccountsByOwner(context.Background(), solana.NewWallet().PublicKey(),
		&solanarpc.GetTokenAccountsConfig{ProgramId: solana.TokenProgramID.ToPointer()},
		&solanarpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64})
	require.NoError(t, err)
	assert.Empty(t, res.Value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&badHits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&goodHits))

	// the rotation continues where it left off
	_, err = c.GetTokenAccountsByOwner(context.Background(), solana.NewWallet().PublicKey(),
		&solanarpc.GetTokenAccountsConfig{ProgramId: solana.TokenProgramID.ToPointer()}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&badHits))
}

func TestClient_AllNodesFail(t *testing.T) {
	var hits int32
	c := newTestClient(t, rpcNode(t, true, &hits).URL, rpcNode(t, true, &hits).URL)

	err := c.ExecuteWithRetry(context.Background(), "getHealth", func(ctx context.Context, node *solanarpc.Client) error {
		_, err := node.GetHealth(ctx)
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 RPC attempts failed")
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClient_StopsOnCancelledContext(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := c.ExecuteWithRetry(ctx, "noop", func(context.Context, *solanarpc.Client) error {
		called = true
		return errors.New("unreachable")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestClient_GetSignatureStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getSignatureStatuses", req.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":{"context":{"slot":82},` +
			`"value":[{"slot":72,"confirmations":10,"err":null,"confirmationStatus":"confirmed"},null]}}`))
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL)

	res, err := c.GetSignatureStatuses(context.Background(), false, solana.Signature{1}, solana.Signature{2})
	require.NoError(t, err)
	require.Len(t, res.Value, 2)
	require.NotNil(t, res.Value[0])
	assert.Equal(t, solanarpc.ConfirmationStatusConfirmed, res.Value[0].ConfirmationStatus)
	assert.Nil(t, res.Value[0].Err)
	assert.Nil(t, res.Value[1])
}
