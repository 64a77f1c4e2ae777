package daemon

import (
	"context"
	"fmt"
)

// Operation status values reported by the daemon for async operations.
const (
	StatusQueued    = "queued"
	StatusExecuting = "executing"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
)

// RPCError is the error object returned by the daemon on a failed call.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("daemon rpc error %d: %s", e.Code, e.Message)
}

// Recipient is a single output of a shielded send.
type Recipient struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	Memo    string  `json:"memo,omitempty"` // hex
}

// Operation is an entry returned by the operation status/result calls.
type Operation struct {
	ID     string            `json:"id"`
	Status string            `json:"status"`
	Error  *RPCError         `json:"error,omitempty"`
	Result *OperationOutcome `json:"result,omitempty"`
}

// OperationOutcome carries the confirmed transaction id of a finished
// operation.
type OperationOutcome struct {
	TxID string `json:"txid"`
}

// UnspentNote is an unspent shielded note as reported by the daemon.
type UnspentNote struct {
	TxID          string  `json:"txid"`
	Address       string  `json:"address"`
	Amount        float64 `json:"amount"`
	Memo          string  `json:"memo"` // hex, NUL-padded to the memo width
	Confirmations int     `json:"confirmations"`
}

// RPC is the full-node daemon surface the messaging engine consumes. The
// concrete implementation is Client; tests substitute fakes.
type RPC interface {
	GetNewAddress(ctx context.Context) (string, error)
	ExportKey(ctx context.Context, address string) (string, error)
	ImportKey(ctx context.Context, key string) error
	SendMemo(ctx context.Context, from string, recipients []Recipient, minConf int, fee float64) (string, error)
	OperationStatus(ctx context.Context, opIDs []string) ([]Operation, error)
	OperationResult(ctx context.Context, opIDs []string) ([]Operation, error)
	ListUnspent(ctx context.Context, minConf int, addresses []string) ([]UnspentNote, error)
	Balance(ctx context.Context, address string, minConf int) (float64, error)
	MedianTime(ctx context.Context) (int64, error)
}
