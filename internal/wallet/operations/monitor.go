package operations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memowire/memowire/internal/daemon"
	"github.com/sirupsen/logrus"
)

// ErrResultTimeout is returned when an operation's result never appears
// within the configured number of result polls.
var ErrResultTimeout = errors.New("operation result polling timed out")

// SubmissionError reports that the daemon rejected the send call outright.
// It is terminal: the caller reports it and performs no polling.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submission failed: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// OperationError reports an operation whose status resolved to failed after
// submission.
type OperationError struct {
	OpID    string
	Message string
}

func (e *OperationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("operation %s failed", e.OpID)
	}
	return fmt.Sprintf("operation %s failed: %s", e.OpID, e.Message)
}

// TxRecorder records a transaction id as already interpreted. Outbound
// actions mark their own txid through it right after confirmation, so the
// inbound poll loop never routes a memo this wallet just sent.
type TxRecorder interface {
	MarkTxProcessed(txid string) error
}

// Monitor drives a submitted daemon operation to a confirmed txid or a
// failure. Every value-moving action in the engine goes through one.
type Monitor struct {
	rpc      daemon.RPC
	interval time.Duration
	maxPolls int
}

// New creates a monitor polling results every interval, giving up after
// maxPolls result queries. maxPolls <= 0 means poll forever (the caller's
// context is then the only bound).
func New(rpc daemon.RPC, interval time.Duration, maxPolls int) *Monitor {
	return &Monitor{rpc: rpc, interval: interval, maxPolls: maxPolls}
}

// Handle identifies a submitted operation awaiting confirmation.
type Handle struct {
	monitor *Monitor
	OpID    string
}

// Submit asks the daemon to send a memo-carrying payment. A rejected call
// returns a *SubmissionError and nothing was submitted.
func (m *Monitor) Submit(ctx context.Context, from, to string, amount, fee float64, memoHex string) (*Handle, error) {
	recipients := []daemon.Recipient{{Address: to, Amount: amount, Memo: memoHex}}
	opID, err := m.rpc.SendMemo(ctx, from, recipients, 1, fee)
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"opid": opID,
		"to":   to,
	}).Debug("Operation submitted")

	return &Handle{monitor: m, OpID: opID}, nil
}

// Await polls the operation to completion and returns its txid. The status
// is checked once; only an executing or already-successful operation enters
// the result-polling loop. A failed result terminates without a txid.
func (h *Handle) Await(ctx context.Context) (string, error) {
	m := h.monitor

	ops, err := m.rpc.OperationStatus(ctx, []string{h.OpID})
	if err != nil {
		return "", fmt.Errorf("querying status of operation %s: %w", h.OpID, err)
	}

	status := ""
	var statusErr *daemon.RPCError
	if len(ops) > 0 {
		status = ops[0].Status
		statusErr = ops[0].Error
	}
	switch status {
	case daemon.StatusExecuting, daemon.StatusSuccess:
		// Keep going; the result record appears once the daemon commits
		// the transaction.
	default:
		opErr := &OperationError{OpID: h.OpID}
		if statusErr != nil {
			opErr.Message = statusErr.Message
		}
		return "", opErr
	}

	for polls := 0; m.maxPolls <= 0 || polls < m.maxPolls; polls++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.interval):
		}

		results, err := m.rpc.OperationResult(ctx, []string{h.OpID})
		if err != nil {
			return "", fmt.Errorf("querying result of operation %s: %w", h.OpID, err)
		}
		if len(results) == 0 {
			continue
		}

		op := results[0]
		switch op.Status {
		case daemon.StatusFailed:
			opErr := &OperationError{OpID: h.OpID}
			if op.Error != nil {
				opErr.Message = op.Error.Message
			}
			return "", opErr
		case daemon.StatusSuccess:
			if op.Result != nil && op.Result.TxID != "" {
				logrus.WithFields(logrus.Fields{
					"opid": h.OpID,
					"txid": op.Result.TxID,
				}).Info("Operation confirmed")
				return op.Result.TxID, nil
			}
		}
		// Result not materialized yet; poll again.
	}

	return "", ErrResultTimeout
}

// Run submits and awaits in one call, the common path for outbound actions.
func (m *Monitor) Run(ctx context.Context, from, to string, amount, fee float64, memoHex string) (string, error) {
	handle, err := m.Submit(ctx, from, to, amount, fee, memoHex)
	if err != nil {
		return "", err
	}
	return handle.Await(ctx)
}
