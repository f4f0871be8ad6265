// Package nodeclient implements the algod HTTP client used by the
// BlockArchiver (C2) and AccountingValidator (C5): block fetch, wait-for-next,
// and account fetch. Block fetch goes through the shared retry policy and
// circuit breaker, account fetch through the retry policy only, and
// wait-for-next is a single request with neither. Grounded on
// stellar-live-source-datalake/go/server/server.go's CircuitBreaker usage
// around its archive reader, generalized here from archive-file reads to
// live algod long-polling.
package nodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/retry"
	"go.uber.org/zap"
)

const rawBlockContentType = "application/x-algorand-block-v1"

// Client talks to one algod node over HTTP.
type Client struct {
	baseURL        string
	token          string
	extraHeaders   map[string]string
	httpClient     *http.Client
	backoff        retry.Backoff
	circuitBreaker *retry.CircuitBreaker
	logger         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (timeouts, transport).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBackoff overrides the default retry policy.
func WithBackoff(b retry.Backoff) Option {
	return func(cl *Client) { cl.backoff = b }
}

// WithExtraHeaders attaches additional HTTP headers to every request.
func WithExtraHeaders(h map[string]string) Option {
	return func(cl *Client) { cl.extraHeaders = h }
}

// New creates a Client for the given node address and auth token.
func New(address, token string, logger *zap.Logger, opts ...Option) *Client {
	cl := &Client{
		baseURL:        address,
		token:          token,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		backoff:        retry.DefaultBackoff(),
		circuitBreaker: retry.NewCircuitBreaker(5, 30*time.Second),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", chain.ErrTransport, err)
	}
	if c.token != "" {
		req.Header.Set("X-Algo-API-Token", c.token)
	}
	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

// isRetriable reports whether err, returned from a GET, is worth retrying.
// Only transport-level failures are retriable; ConfigError and malformed
// content are not, per spec.md §7.
func isRetriable(err error) bool {
	return errors.Is(err, chain.ErrTransport)
}

// FetchBlock retrieves round's raw canonical msgpack envelope bytes via
// GET /block/<round>?raw=1, per spec.md §6. A non-raw content type is a
// ConfigError: the node does not expose raw blocks and the component must
// halt rather than retry.
func (c *Client) FetchBlock(ctx context.Context, round uint64) ([]byte, error) {
	if !c.circuitBreaker.Allow() {
		return nil, fmt.Errorf("%w: circuit breaker open", chain.ErrTransport)
	}

	var body []byte
	err := c.backoff.Do(ctx, isRetriable, func() error {
		req, err := c.newRequest(ctx, fmt.Sprintf("/block/%d?raw=1", round))
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", chain.ErrTransport, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: unexpected status %d fetching block %d", chain.ErrTransport, resp.StatusCode, round)
		}

		ct := resp.Header.Get("Content-Type")
		if ct != "" && ct != rawBlockContentType {
			return fmt.Errorf("%w: node returned content-type %q, want %q; raw blocks not exposed", chain.ErrConfig, ct, rawBlockContentType)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: reading block %d body: %v", chain.ErrTransport, round, err)
		}
		body = b
		return nil
	})

	if err != nil {
		c.circuitBreaker.RecordFailure()
		return nil, err
	}
	c.circuitBreaker.RecordSuccess()
	return body, nil
}

// waitResponse mirrors the JSON shape of /status/wait-for-block-after.
type waitResponse struct {
	LastRound uint64 `json:"lastRound"`
}

// WaitForBlockAfter long-polls GET /status/wait-for-block-after/<round>
// until the node reports a round past round, or ctx is cancelled.
func (c *Client) WaitForBlockAfter(ctx context.Context, round uint64) (uint64, error) {
	req, err := c.newRequest(ctx, fmt.Sprintf("/status/wait-for-block-after/%d", round))
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", chain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: unexpected status %d waiting after round %d", chain.ErrTransport, resp.StatusCode, round)
	}

	var wr waitResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return 0, fmt.Errorf("%w: decoding wait response: %v", chain.ErrTransport, err)
	}
	return wr.LastRound, nil
}

// AccountAsset mirrors one entry of the account fetch's "assets" array.
type AccountAsset struct {
	AssetID uint64 `json:"asset-id"`
	Amount  uint64 `json:"amount"`
	Frozen  bool   `json:"is-frozen"`
}

// AccountAssetParam mirrors one entry of the account fetch's
// "created-assets" array (assets this account created).
type AccountAssetParam struct {
	AssetID uint64 `json:"index"`
	Params  struct {
		Total         uint64 `json:"total"`
		Decimals      uint32 `json:"decimals"`
		DefaultFrozen bool   `json:"default-frozen"`
		UnitName      string `json:"unit-name"`
		AssetName     string `json:"name"`
		URL           string `json:"url"`
		Manager       string `json:"manager"`
		Reserve       string `json:"reserve"`
		Freeze        string `json:"freeze"`
		Clawback      string `json:"clawback"`
	} `json:"params"`
}

// Account is the authoritative node's view of one address at one round,
// per spec.md §6's "Account fetch" contract.
type Account struct {
	Address     string              `json:"address"`
	Round       uint64              `json:"round"`
	Amount      uint64              `json:"amount"`
	RewardsBase uint64              `json:"rewards"`
	Assets      []AccountAsset      `json:"assets"`
	CreatedAsa  []AccountAssetParam `json:"created-assets"`
}

// FetchAccount retrieves the authoritative account snapshot via
// GET /v2/accounts/<addr>?round=<r>.
func (c *Client) FetchAccount(ctx context.Context, addr string, round uint64) (Account, error) {
	var acct Account
	err := c.backoff.Do(ctx, isRetriable, func() error {
		req, err := c.newRequest(ctx, fmt.Sprintf("/v2/accounts/%s?round=%s", addr, strconv.FormatUint(round, 10)))
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", chain.ErrTransport, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: unexpected status %d fetching account %s", chain.ErrTransport, resp.StatusCode, addr)
		}

		var a Account
		if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
			return fmt.Errorf("%w: decoding account %s: %v", chain.ErrTransport, addr, err)
		}
		acct = a
		return nil
	})
	return acct, err
}
