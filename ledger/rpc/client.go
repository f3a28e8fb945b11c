// Package rpc implements ledger.Reader and ledger.Writer over a JSON-RPC 2.0
// HTTP endpoint.
package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/ledgercache/ledger"
)

const (
	jsonRPCVersion      = "2.0"
	defaultPollInterval = 500 * time.Millisecond
)

// Client is safe for concurrent use. Its configuration is fixed after New.
type Client struct {
	endpoint      string
	httpClient    *http.Client
	limiter       *rate.Limiter
	pollInterval  time.Duration
	preflight     ledger.Commitment
	skipPreflight bool
	lastID        atomic.Uint64
}

var (
	_ ledger.Reader = (*Client)(nil)
	_ ledger.Writer = (*Client)(nil)
)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for RPC calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithRateLimit bounds outgoing requests; rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithPollInterval sets how often ConfirmTransaction checks signature status.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithPreflightCommitment sets the simulation commitment for sendTransaction.
func WithPreflightCommitment(cm ledger.Commitment) Option {
	return func(c *Client) { c.preflight = cm }
}

// WithSkipPreflight disables transaction simulation before broadcast.
func WithSkipPreflight(skip bool) Option {
	return func(c *Client) { c.skipPreflight = skip }
}

// New initialises a client bound to the provided JSON-RPC endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc: endpoint required")
	}
	c := &Client{
		endpoint:     trimmed,
		httpClient:   http.DefaultClient,
		pollInterval: defaultPollInterval,
		preflight:    ledger.CommitmentConfirmed,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if !c.preflight.Valid() {
		c.preflight = ledger.CommitmentConfirmed
	}
	return c, nil
}

type accountInfoResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value *struct {
		Data     []string `json:"data"`
		Owner    string   `json:"owner"`
		Lamports uint64   `json:"lamports"`
	} `json:"value"`
}

// ReadAccount calls getAccountInfo with base64 encoding.
func (c *Client) ReadAccount(ctx context.Context, address ledger.PublicKey, commitment ledger.Commitment) (ledger.RawAccount, error) {
	params := []interface{}{
		address.String(),
		map[string]interface{}{"encoding": "base64", "commitment": string(commitment)},
	}
	var res accountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &res); err != nil {
		return ledger.RawAccount{}, err
	}
	if res.Value == nil {
		return ledger.RawAccount{Slot: res.Context.Slot}, nil
	}
	raw := ledger.RawAccount{
		Present:  true,
		Lamports: res.Value.Lamports,
		Slot:     res.Context.Slot,
	}
	if len(res.Value.Data) != 2 || res.Value.Data[1] != "base64" {
		return ledger.RawAccount{}, fmt.Errorf("rpc: getAccountInfo: unexpected data encoding %q", res.Value.Data)
	}
	data, err := base64.StdEncoding.DecodeString(res.Value.Data[0])
	if err != nil {
		return ledger.RawAccount{}, fmt.Errorf("rpc: getAccountInfo: decode data: %w", err)
	}
	raw.Data = data
	if res.Value.Owner != "" {
		owner, err := ledger.ParsePublicKey(res.Value.Owner)
		if err != nil {
			return ledger.RawAccount{}, fmt.Errorf("rpc: getAccountInfo: owner: %w", err)
		}
		raw.Owner = owner
	}
	return raw, nil
}

type blockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// LatestBlockhash returns the blockhash new transactions should reference.
func (c *Client) LatestBlockhash(ctx context.Context, commitment ledger.Commitment) ([32]byte, error) {
	var out [32]byte
	var res blockhashResult
	params := []interface{}{map[string]interface{}{"commitment": string(commitment)}}
	if err := c.call(ctx, "getLatestBlockhash", params, &res); err != nil {
		return out, err
	}
	pk, err := ledger.ParsePublicKey(res.Value.Blockhash)
	if err != nil {
		return out, fmt.Errorf("rpc: getLatestBlockhash: %w", err)
	}
	return [32]byte(pk), nil
}

// SubmitTransaction signs instructions with signer and broadcasts them.
// Send failures, including preflight simulation errors, are TransactionFailed.
func (c *Client) SubmitTransaction(ctx context.Context, instructions []ledger.Instruction, signer ledger.Signer) (ledger.Signature, error) {
	var sig ledger.Signature
	blockhash, err := c.LatestBlockhash(ctx, c.preflight)
	if err != nil {
		return sig, err
	}
	tx, err := ledger.NewTransaction(instructions, signer, blockhash)
	if err != nil {
		return sig, ledger.Wrap(ledger.KindTransactionFailed, "build", err)
	}
	wire, err := tx.MarshalBinary()
	if err != nil {
		return sig, ledger.Wrap(ledger.KindTransactionFailed, "build", err)
	}
	params := []interface{}{
		base64.StdEncoding.EncodeToString(wire),
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       c.skipPreflight,
			"preflightCommitment": string(c.preflight),
		},
	}
	var res string
	if err := c.call(ctx, "sendTransaction", params, &res); err != nil {
		var rerr *Error
		if errors.As(err, &rerr) {
			return sig, ledger.Wrap(ledger.KindTransactionFailed, "sendTransaction", err)
		}
		return sig, err
	}
	sent, err := ledger.ParseSignature(res)
	if err != nil {
		return sig, fmt.Errorf("rpc: sendTransaction: %w", err)
	}
	return sent, nil
}

type signatureStatusResult struct {
	Value []*struct {
		Slot               uint64          `json:"slot"`
		Err                json.RawMessage `json:"err"`
		ConfirmationStatus string          `json:"confirmationStatus"`
	} `json:"value"`
}

// ConfirmTransaction polls getSignatureStatuses until commitment is reached,
// the transaction reports an error, or ctx ends.
func (c *Client) ConfirmTransaction(ctx context.Context, sig ledger.Signature, commitment ledger.Commitment) error {
	if !commitment.Valid() {
		return fmt.Errorf("rpc: confirm: invalid commitment %q", commitment)
	}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	params := []interface{}{[]string{sig.String()}, map[string]interface{}{"searchTransactionHistory": false}}
	for {
		var res signatureStatusResult
		if err := c.call(ctx, "getSignatureStatuses", params, &res); err != nil {
			if ctx.Err() != nil {
				return ledger.Wrap(ledger.KindTransactionFailed, "confirm",
					fmt.Errorf("transaction %s not %s: %w", sig, commitment, ctx.Err()))
			}
			return err
		}
		if len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if len(st.Err) > 0 && string(st.Err) != "null" {
				return ledger.Wrap(ledger.KindTransactionFailed, "confirm",
					fmt.Errorf("transaction %s failed: %s", sig, st.Err))
			}
			if commitment.Reached(ledger.Commitment(st.ConfirmationStatus)) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ledger.Wrap(ledger.KindTransactionFailed, "confirm",
				fmt.Errorf("transaction %s not %s: %w", sig, commitment, ctx.Err()))
		case <-ticker.C:
		}
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// call returns ConnectionUnavailable for anything that prevented a well-formed
// response from arriving, and *Error for node-side rejections.
func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return ledger.Wrap(ledger.KindConnectionUnavailable, method, err)
		}
	}
	payload := rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.lastID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rpc: encode %s payload: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ledger.Wrap(ledger.KindConnectionUnavailable, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ledger.Wrap(ledger.KindConnectionUnavailable, method,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ledger.Wrap(ledger.KindConnectionUnavailable, method, fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != nil {
		return fmt.Errorf("rpc: %s: %w", method, decoded.Error)
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("rpc: decode %s result: %w", method, err)
	}
	return nil
}
