package operations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/memowire/memowire/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPC scripts the daemon's operation lifecycle for one submitted
// operation.
type fakeRPC struct {
	daemon.RPC

	submitErr error
	status    []daemon.Operation
	statusErr error
	results   [][]daemon.Operation // consumed one slice per result poll
	resultIdx int
}

func (f *fakeRPC) SendMemo(ctx context.Context, from string, recipients []daemon.Recipient, minConf int, fee float64) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "opid-1", nil
}

func (f *fakeRPC) OperationStatus(ctx context.Context, opIDs []string) ([]daemon.Operation, error) {
	return f.status, f.statusErr
}

func (f *fakeRPC) OperationResult(ctx context.Context, opIDs []string) ([]daemon.Operation, error) {
	if f.resultIdx >= len(f.results) {
		return nil, nil
	}
	r := f.results[f.resultIdx]
	f.resultIdx++
	return r, nil
}

func newTestMonitor(rpc daemon.RPC, maxPolls int) *Monitor {
	return New(rpc, time.Millisecond, maxPolls)
}

func TestRunSuccess(t *testing.T) {
	rpc := &fakeRPC{
		status: []daemon.Operation{{ID: "opid-1", Status: daemon.StatusExecuting}},
		results: [][]daemon.Operation{
			nil, // result not materialized on the first poll
			{{ID: "opid-1", Status: daemon.StatusSuccess, Result: &daemon.OperationOutcome{TxID: "txid-abc"}}},
		},
	}

	txid, err := newTestMonitor(rpc, 10).Run(context.Background(), "zfrom", "zto", 0.0001, 0.0001, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "txid-abc", txid)
}

func TestSubmitRejectedIsTerminal(t *testing.T) {
	rpc := &fakeRPC{submitErr: &daemon.RPCError{Code: -6, Message: "insufficient funds"}}

	_, err := newTestMonitor(rpc, 10).Run(context.Background(), "zfrom", "zto", 1, 0.0001, "")
	require.Error(t, err)

	var subErr *SubmissionError
	assert.ErrorAs(t, err, &subErr)
}

func TestFirstStatusFailedSkipsResultLoop(t *testing.T) {
	rpc := &fakeRPC{
		status: []daemon.Operation{{ID: "opid-1", Status: daemon.StatusFailed, Error: &daemon.RPCError{Message: "tx too large"}}},
	}

	_, err := newTestMonitor(rpc, 10).Run(context.Background(), "zfrom", "zto", 0.0001, 0.0001, "")
	require.Error(t, err)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "tx too large", opErr.Message)
	assert.Equal(t, 0, rpc.resultIdx, "result endpoint must not be polled")
}

func TestQueuedStatusDoesNotEnterResultLoop(t *testing.T) {
	rpc := &fakeRPC{
		status: []daemon.Operation{{ID: "opid-1", Status: daemon.StatusQueued}},
	}

	_, err := newTestMonitor(rpc, 10).Run(context.Background(), "zfrom", "zto", 0.0001, 0.0001, "")
	require.Error(t, err)

	var opErr *OperationError
	assert.ErrorAs(t, err, &opErr)
}

func TestFailedResultTerminatesLoop(t *testing.T) {
	rpc := &fakeRPC{
		status: []daemon.Operation{{ID: "opid-1", Status: daemon.StatusExecuting}},
		results: [][]daemon.Operation{
			{{ID: "opid-1", Status: daemon.StatusFailed, Error: &daemon.RPCError{Message: "missing inputs"}}},
		},
	}

	_, err := newTestMonitor(rpc, 10).Run(context.Background(), "zfrom", "zto", 0.0001, 0.0001, "")
	require.Error(t, err)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "missing inputs", opErr.Message)
}

func TestResultPollingIsBounded(t *testing.T) {
	rpc := &fakeRPC{
		status: []daemon.Operation{{ID: "opid-1", Status: daemon.StatusExecuting}},
	}

	_, err := newTestMonitor(rpc, 3).Run(context.Background(), "zfrom", "zto", 0.0001, 0.0001, "")
	assert.ErrorIs(t, err, ErrResultTimeout)
}

func TestAwaitCancellation(t *testing.T) {
	rpc := &fakeRPC{
		status: []daemon.Operation{{ID: "opid-1", Status: daemon.StatusExecuting}},
	}

	monitor := New(rpc, time.Hour, 0)
	handle, err := monitor.Submit(context.Background(), "zfrom", "zto", 0.0001, 0.0001, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := handle.Await(ctx)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return after context cancellation")
	}
}
