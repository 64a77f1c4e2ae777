package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	walletdb "github.com/memowire/memowire/internal/database"
	"github.com/memowire/memowire/internal/daemon"
	"github.com/memowire/memowire/internal/wallet/consolidation"
	"github.com/memowire/memowire/internal/wallet/contacts"
	"github.com/memowire/memowire/internal/wallet/handshake"
	"github.com/memowire/memowire/internal/wallet/identity"
	"github.com/memowire/memowire/internal/wallet/messages"
	"github.com/memowire/memowire/internal/wallet/operations"
	"github.com/memowire/memowire/lib/memo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Notifier receives engine events for delivery to local subscribers (the
// desktop notification bridge).
type Notifier interface {
	Publish(event string, data map[string]interface{})
}

// Engine is the messaging engine: it owns the poll loop that turns unspent
// notes on the identity address into contacts and messages, and the
// components every outbound action goes through.
type Engine struct {
	Store        *walletdb.Store
	RPC          daemon.RPC
	Identity     *identity.Manager
	Contacts     *contacts.Directory
	Handshake    *handshake.Protocol
	Transport    *messages.Transport
	Consolidator *consolidation.Consolidator

	pollInterval time.Duration
	minConf      int

	mu        sync.Mutex
	processed map[string]struct{}
}

// NewEngine wires the engine from the store, daemon client and identity key
// store, reading tuning knobs from the loaded configuration.
func NewEngine(store *walletdb.Store, rpc daemon.RPC, keys identity.KeyStore, notifier Notifier) *Engine {
	dust := viper.GetFloat64("dust_amount")
	fee := viper.GetFloat64("default_fee")

	notify := func(event string, data map[string]interface{}) {}
	if notifier != nil {
		notify = notifier.Publish
	}

	monitor := operations.New(rpc, viper.GetDuration("result_poll_interval"), viper.GetInt("max_result_polls"))
	dir := contacts.New(store)
	idm := identity.New(store, rpc, keys)

	e := &Engine{
		Store:        store,
		RPC:          rpc,
		Identity:     idm,
		Contacts:     dir,
		pollInterval: viper.GetDuration("poll_interval"),
		minConf:      viper.GetInt("min_conf"),
		processed:    make(map[string]struct{}),
	}

	// The engine is the tx recorder so outbound txids enter the in-memory
	// dedup set as well, not just the store.
	e.Handshake = handshake.New(store, e, dir, monitor, idm, dust, fee, notify)
	e.Transport = messages.New(store, e, dir, monitor, rpc, idm, dust, fee, notify)
	e.Consolidator = consolidation.New(e, rpc, monitor, viper.GetInt("max_notes_per_tx"), fee)

	return e
}

// Run drives the inbound poll loop until the context is cancelled. One batch
// of notes is fully decoded and routed before the next sleep.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.loadProcessed(); err != nil {
		return err
	}

	logrus.WithField("interval", e.pollInterval).Info("Messaging engine started")

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		e.PollOnce(ctx)

		select {
		case <-ctx.Done():
			logrus.Info("Messaging engine stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// loadProcessed seeds the in-memory dedup set from the store.
func (e *Engine) loadProcessed() error {
	txids, err := e.Store.ProcessedTxIDs()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, txid := range txids {
		e.processed[txid] = struct{}{}
	}
	return nil
}

func (e *Engine) seen(txid string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.processed[txid]
	return ok
}

// MarkTxProcessed records a txid as interpreted, in memory and in the store.
// Outbound components call this through the operations.TxRecorder interface
// so the current session skips their transactions without a restart.
func (e *Engine) MarkTxProcessed(txid string) error {
	e.mu.Lock()
	e.processed[txid] = struct{}{}
	e.mu.Unlock()

	return e.Store.MarkTxProcessed(txid)
}

// PollOnce runs a single inbound cycle: list unspent notes on the identity
// address, decode and route the unseen ones, and trigger a consolidation if
// the note count has reached the output limit.
func (e *Engine) PollOnce(ctx context.Context) {
	self, err := e.Identity.Current()
	if err != nil {
		if !errors.Is(err, identity.ErrNoIdentity) {
			logrus.WithError(err).Error("Failed to load identity")
		}
		return
	}

	notes, err := e.RPC.ListUnspent(ctx, e.minConf, []string{self.Address})
	if err != nil {
		logrus.WithError(err).Warn("Failed to list unspent notes")
		return
	}

	for _, note := range notes {
		if e.seen(note.TxID) {
			continue
		}
		e.processNote(note)
	}

	if e.Consolidator.Needed(len(notes)) {
		go func() {
			if _, err := e.Consolidator.Merge(ctx, self.Address); err != nil {
				logrus.WithError(err).Warn("Note consolidation failed")
			}
		}()
	}
}

// processNote decodes and routes one transaction's memo. The txid is marked
// processed exactly once whatever the outcome; no failure here interrupts
// the poll loop.
func (e *Engine) processNote(note daemon.UnspentNote) {
	defer func() {
		if err := e.MarkTxProcessed(note.TxID); err != nil {
			logrus.WithError(err).WithField("txid", note.TxID).Error("Failed to persist processed txid")
		}
	}()

	form, err := memo.Decode(note.Memo)
	if err != nil {
		// Foreign or malformed transaction: funds received without a
		// recognized payload.
		logrus.WithFields(logrus.Fields{
			"txid":   note.TxID,
			"amount": note.Amount,
		}).Info("Received value without a recognized payload")
		return
	}

	if form.Address != "" {
		banned, err := e.Contacts.IsBanned(form.Address)
		if err != nil {
			logrus.WithError(err).Error("Ban check failed")
			return
		}
		if banned {
			logrus.WithFields(logrus.Fields{
				"txid":    note.TxID,
				"address": form.Address,
			}).Info("Dropped payload from banned address")
			return
		}
	}

	var routeErr error
	switch form.Type {
	case memo.TypeRequest:
		routeErr = e.Handshake.HandleRequest(form)
	case memo.TypeIdentity:
		routeErr = e.Handshake.HandleIdentity(form)
	case memo.TypeMessage:
		routeErr = e.Transport.HandleMessage(form, note.Amount)
	case memo.TypeMerge:
		// Our own consolidation landing back on the address.
		logrus.WithField("txid", note.TxID).Debug("Merge note observed")
	default:
		logrus.WithFields(logrus.Fields{
			"txid": note.TxID,
			"type": form.Type,
		}).Warn("Unknown payload type, dropping")
	}

	if routeErr != nil {
		logrus.WithError(routeErr).WithFields(logrus.Fields{
			"txid": note.TxID,
			"type": form.Type,
		}).Error("Failed to route payload")
	}
}
