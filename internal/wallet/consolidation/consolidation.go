package consolidation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/memowire/memowire/internal/daemon"
	"github.com/memowire/memowire/internal/wallet/operations"
	"github.com/memowire/memowire/lib/memo"
	"github.com/sirupsen/logrus"
)

// ErrNothingToMerge is returned when the balance would not cover the merge
// fee.
var ErrNothingToMerge = errors.New("balance does not cover the merge fee")

// Consolidator keeps the identity address's note count below the daemon's
// per-transaction output limit by periodically merging all notes into one
// self-payment. Transport-health only: no contact or message state changes.
type Consolidator struct {
	txs      operations.TxRecorder
	rpc      daemon.RPC
	monitor  *operations.Monitor
	maxNotes int
	fee      float64

	inFlight atomic.Bool
}

func New(txs operations.TxRecorder, rpc daemon.RPC, monitor *operations.Monitor, maxNotes int, fee float64) *Consolidator {
	return &Consolidator{
		txs:      txs,
		rpc:      rpc,
		monitor:  monitor,
		maxNotes: maxNotes,
		fee:      fee,
	}
}

// Needed reports whether the note count has reached the output limit.
func (c *Consolidator) Needed(noteCount int) bool {
	return noteCount >= c.maxNotes
}

// Merge submits a self-payment of the full balance minus the fee, carrying a
// merge memo. At most one merge is in flight at a time; a second call while
// one is running is a no-op.
func (c *Consolidator) Merge(ctx context.Context, address string) (string, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return "", nil
	}
	defer c.inFlight.Store(false)

	balance, err := c.rpc.Balance(ctx, address, 1)
	if err != nil {
		return "", fmt.Errorf("querying balance for merge: %w", err)
	}

	amount := balance - c.fee
	if amount <= 0 {
		return "", ErrNothingToMerge
	}

	memoHex, err := memo.Encode(&memo.Payload{Type: memo.TypeMerge})
	if err != nil {
		return "", err
	}

	txid, err := c.monitor.Run(ctx, address, address, amount, c.fee, memoHex)
	if err != nil {
		return "", err
	}

	if err := c.txs.MarkTxProcessed(txid); err != nil {
		return "", fmt.Errorf("recording merge txid: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"txid":   txid,
		"amount": amount,
	}).Info("Notes consolidated")

	return txid, nil
}
