package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client talks JSON-RPC over HTTP to the full-node daemon.
type Client struct {
	url        string
	user       string
	password   string
	httpClient *http.Client
	nextID     atomic.Uint64
}

var _ RPC = (*Client)(nil)

// NewClient creates a daemon client for the given RPC endpoint.
func NewClient(url, user, password string) *Client {
	return &Client{
		url:      url,
		user:     user,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
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
	Error  *RPCError       `json:"error"`
	ID     uint64          `json:"id"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("parsing %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("parsing %s result: %w", method, err)
	}

	return nil
}

// GetNewAddress mints a fresh shielded address in the daemon's wallet.
func (c *Client) GetNewAddress(ctx context.Context) (string, error) {
	var address string
	if err := c.call(ctx, "z_getnewaddress", nil, &address); err != nil {
		return "", err
	}
	return address, nil
}

// ExportKey exports the spending key for an address held by the daemon.
func (c *Client) ExportKey(ctx context.Context, address string) (string, error) {
	var key string
	if err := c.call(ctx, "z_exportkey", []interface{}{address}, &key); err != nil {
		return "", err
	}
	return key, nil
}

// ImportKey imports a spending key into the daemon's wallet.
func (c *Client) ImportKey(ctx context.Context, key string) error {
	return c.call(ctx, "z_importkey", []interface{}{key}, nil)
}

// SendMemo submits an async shielded send and returns its operation id.
func (c *Client) SendMemo(ctx context.Context, from string, recipients []Recipient, minConf int, fee float64) (string, error) {
	var opID string
	if err := c.call(ctx, "z_sendmany", []interface{}{from, recipients, minConf, fee}, &opID); err != nil {
		return "", err
	}
	return opID, nil
}

// OperationStatus queries the status of pending operations without
// consuming their results.
func (c *Client) OperationStatus(ctx context.Context, opIDs []string) ([]Operation, error) {
	var ops []Operation
	if err := c.call(ctx, "z_getoperationstatus", []interface{}{opIDs}, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// OperationResult queries finished operations; the daemon removes an
// operation from its queue once its result has been returned.
func (c *Client) OperationResult(ctx context.Context, opIDs []string) ([]Operation, error) {
	var ops []Operation
	if err := c.call(ctx, "z_getoperationresult", []interface{}{opIDs}, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

// ListUnspent lists the unspent shielded notes for the given addresses.
func (c *Client) ListUnspent(ctx context.Context, minConf int, addresses []string) ([]UnspentNote, error) {
	var notes []UnspentNote
	if err := c.call(ctx, "z_listunspent", []interface{}{minConf, 9999999, false, addresses}, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// Balance reports the confirmed balance of a single address.
func (c *Client) Balance(ctx context.Context, address string, minConf int) (float64, error) {
	var balance float64
	if err := c.call(ctx, "z_getbalance", []interface{}{address, minConf}, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// MedianTime returns the median time of the chain tip, the clock source for
// outgoing message timestamps.
func (c *Client) MedianTime(ctx context.Context) (int64, error) {
	var info struct {
		MedianTime int64 `json:"mediantime"`
	}
	if err := c.call(ctx, "getblockchaininfo", nil, &info); err != nil {
		return 0, err
	}
	return info.MedianTime, nil
}
