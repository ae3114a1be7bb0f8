package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mercx/native/amm"
)

// Client talks to the external asset ledger's transfer API over HTTP JSON.
// It implements amm.LedgerClient.
type Client struct {
	base string
	http *http.Client
}

// New constructs a ledger client for the given base endpoint.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type refPayload struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func encodeRef(ref amm.TxRef) refPayload {
	if ref.BlockIndex != nil {
		return refPayload{Kind: "block", Value: ref.BlockIndex.String()}
	}
	return refPayload{Kind: "hash", Value: ref.Hash}
}

func decodeRef(payload refPayload) (amm.TxRef, error) {
	switch payload.Kind {
	case "block":
		index, ok := new(big.Int).SetString(strings.TrimSpace(payload.Value), 10)
		if !ok || index.Sign() < 0 {
			return amm.TxRef{}, fmt.Errorf("ledgerclient: invalid block index %q", payload.Value)
		}
		return amm.TxRef{BlockIndex: index}, nil
	case "hash":
		if strings.TrimSpace(payload.Value) == "" {
			return amm.TxRef{}, fmt.Errorf("ledgerclient: empty transfer hash")
		}
		return amm.HashRef(payload.Value), nil
	default:
		return amm.TxRef{}, fmt.Errorf("ledgerclient: unknown reference kind %q", payload.Kind)
	}
}

type transferRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
}

type transferResponse struct {
	Ref refPayload `json:"ref"`
}

type verifyRequest struct {
	Token         string     `json:"token"`
	Ref           refPayload `json:"ref"`
	Sender        string     `json:"sender"`
	Recipient     string     `json:"recipient"`
	Amount        string     `json:"amount"`
	WindowSeconds int64      `json:"window_seconds"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pull implements amm.LedgerClient.
func (c *Client) Pull(ctx context.Context, token *amm.Token, amount *big.Int, from, to string) (amm.TxRef, error) {
	req := transferRequest{Token: token.Symbol, Amount: amount.String(), From: from, To: to}
	var resp transferResponse
	if err := c.post(ctx, "/v1/transfers/pull", req, &resp); err != nil {
		return amm.TxRef{}, err
	}
	return decodeRef(resp.Ref)
}

// Push implements amm.LedgerClient.
func (c *Client) Push(ctx context.Context, token *amm.Token, amount *big.Int, to string) (amm.TxRef, error) {
	req := transferRequest{Token: token.Symbol, Amount: amount.String(), To: to}
	var resp transferResponse
	if err := c.post(ctx, "/v1/transfers/push", req, &resp); err != nil {
		return amm.TxRef{}, err
	}
	return decodeRef(resp.Ref)
}

// Verify implements amm.LedgerClient. Stale transfers surface as
// amm.ErrStaleTransfer so the engine can reject them without a refund cycle.
func (c *Client) Verify(ctx context.Context, token *amm.Token, ref amm.TxRef, opts amm.VerifyOptions) error {
	amount := "0"
	if opts.Amount != nil {
		amount = opts.Amount.String()
	}
	req := verifyRequest{
		Token:         token.Symbol,
		Ref:           encodeRef(ref),
		Sender:        opts.Sender,
		Recipient:     opts.Recipient,
		Amount:        amount,
		WindowSeconds: int64(opts.Window / time.Second),
	}
	return c.post(ctx, "/v1/transfers/verify", req, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ledgerclient: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ledgerclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledgerclient: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Code != "" {
			if apiErr.Code == "stale" || apiErr.Code == "expired" {
				return amm.ErrStaleTransfer
			}
			return fmt.Errorf("ledgerclient: %s: %s (%s)", path, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("ledgerclient: %s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ledgerclient: decode response: %w", err)
	}
	return nil
}
