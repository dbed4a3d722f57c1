package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"

	"github.com/lamportchain/ledgerd/internal/directory"
	"github.com/lamportchain/ledgerd/internal/types"
)

// HTTPClient is a Registry implementation that talks to an
// HTTPServer over the north-bound RPC named in spec §6. Every method
// wraps transport/decode failures with github.com/pkg/errors so the
// coordinator's logs carry a call-site-annotated chain rather than a
// bare net/http error.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a Registry client pointed at baseURL (e.g.
// "http://registry:8090").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: http.DefaultClient}
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	buf := &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return pkgerrors.Wrapf(err, "registry client: encode request for %s", path)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, buf)
	if err != nil {
		return pkgerrors.Wrapf(err, "registry client: build request for %s", path)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrapf(err, "registry client: call %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrInsufficientFunds
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return pkgerrors.Errorf("registry client: %s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrapf(err, "registry client: decode response for %s", path)
	}
	return nil
}

func (c *HTTPClient) Register(ctx context.Context, endpoint directory.Endpoint) (RegisterResult, error) {
	var res registerResponse
	if err := c.post(ctx, "/register", registerRequest{Endpoint: string(endpoint)}, &res); err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{NodeID: res.NodeID, InitialBalance: res.InitialBalance, Peers: res.Peers}, nil
}

func (c *HTTPClient) Debit(ctx context.Context, id types.NodeID, amount uint64) error {
	return c.post(ctx, "/debit", amountRequest{NodeID: id, Amount: amount}, nil)
}

func (c *HTTPClient) Credit(ctx context.Context, id types.NodeID, amount uint64) error {
	return c.post(ctx, "/credit", amountRequest{NodeID: id, Amount: amount}, nil)
}

func (c *HTTPClient) Balance(ctx context.Context, id types.NodeID) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/balance?node_id=%d", c.baseURL, id), nil)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "registry client: build balance request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "registry client: call /balance")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, pkgerrors.Errorf("registry client: /balance returned status %d", resp.StatusCode)
	}
	var res balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, pkgerrors.Wrap(err, "registry client: decode /balance response")
	}
	return res.Balance, nil
}
