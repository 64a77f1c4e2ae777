package handshake

import (
	"context"
	"errors"
	"fmt"

	walletdb "github.com/memowire/memowire/internal/database"
	"github.com/memowire/memowire/internal/wallet/contacts"
	"github.com/memowire/memowire/internal/wallet/identity"
	"github.com/memowire/memowire/internal/wallet/operations"
	"github.com/memowire/memowire/lib/memo"
	"github.com/sirupsen/logrus"
)

// ErrPendingNotFound is returned when confirming or rejecting a request that
// no longer exists.
var ErrPendingNotFound = errors.New("pending request not found")

// Notify is invoked when the handshake surfaces an event the user should see
// (a new inbound request, a completed contact).
type Notify func(event string, data map[string]interface{})

// Protocol drives the two-phase request/accept exchange that turns an
// address into a contact. Addresses are pseudonymous; the exchanged tokens
// give both sides a stable key to correlate future messages with, regardless
// of username changes.
type Protocol struct {
	store    *walletdb.Store
	txs      operations.TxRecorder
	dir      *contacts.Directory
	monitor  *operations.Monitor
	identity *identity.Manager
	dust     float64
	fee      float64
	notify   Notify
}

func New(store *walletdb.Store, txs operations.TxRecorder, dir *contacts.Directory, monitor *operations.Monitor, idm *identity.Manager, dust, fee float64, notify Notify) *Protocol {
	if notify == nil {
		notify = func(string, map[string]interface{}) {}
	}
	return &Protocol{
		store:    store,
		txs:      txs,
		dir:      dir,
		monitor:  monitor,
		identity: idm,
		dust:     dust,
		fee:      fee,
		notify:   notify,
	}
}

// SendRequest starts a handshake with the peer at the given address. A fresh
// local token is minted and sent in a request memo; the outgoing request is
// recorded only after the transaction confirms, so a failed send leaves no
// dangling state.
func (p *Protocol) SendRequest(ctx context.Context, peerAddress string) error {
	self, err := p.identity.Current()
	if err != nil {
		return err
	}

	if err := p.dir.EnsureCanRequest(peerAddress, self.Address); err != nil {
		return err
	}

	token := contacts.MintToken()
	payload := &memo.Payload{
		Type:     memo.TypeRequest,
		Category: self.Category,
		ID:       token,
		Username: self.Username,
		Address:  self.Address,
	}
	memoHex, err := memo.Encode(payload)
	if err != nil {
		return err
	}

	txid, err := p.monitor.Run(ctx, self.Address, peerAddress, p.dust, p.fee, memoHex)
	if err != nil {
		return err
	}

	// Mark our own transaction processed before the poll loop can see it.
	if err := p.txs.MarkTxProcessed(txid); err != nil {
		return fmt.Errorf("recording request txid: %w", err)
	}

	if err := p.store.AddOutgoing(&walletdb.OutgoingRequest{LocalToken: token, PeerAddress: peerAddress}); err != nil {
		return fmt.Errorf("recording outgoing request: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"address": peerAddress,
		"txid":    txid,
	}).Info("Contact request sent")

	return nil
}

// HandleRequest processes an inbound request memo. Ban filtering happens
// before routing; here the payload becomes a pending request awaiting the
// user's confirm/reject.
func (p *Protocol) HandleRequest(form *memo.Payload) error {
	if form.ID == "" || form.Address == "" {
		logrus.WithField("type", form.Type).Warn("Request memo missing id or address, dropping")
		return nil
	}

	// A replayed or duplicated request must not pile up pending entries.
	exists, err := p.store.HasPendingWithToken(form.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	pending := &walletdb.PendingRequest{
		Category:     form.Category,
		PeerToken:    form.ID,
		PeerUsername: form.Username,
		PeerAddress:  form.Address,
	}
	if err := p.store.AddPending(pending); err != nil {
		return fmt.Errorf("recording pending request: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"username": form.Username,
		"address":  form.Address,
	}).Info("Inbound contact request received")

	p.notify("new_request", map[string]interface{}{
		"username": form.Username,
		"address":  form.Address,
	})

	return nil
}

// Confirm accepts a pending inbound request: a fresh token is minted and
// sent back in an identity memo, and the requester becomes a contact keyed
// by the token it originally chose. Both tokens are retained so each side
// holds a symmetric {local_token, peer_token} pair.
func (p *Protocol) Confirm(ctx context.Context, pendingID uint) (*walletdb.Contact, error) {
	pending, err := p.store.GetPendingByID(pendingID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrPendingNotFound
	}

	self, err := p.identity.Current()
	if err != nil {
		return nil, err
	}

	ackToken := contacts.MintToken()
	payload := &memo.Payload{
		Type:     memo.TypeIdentity,
		Category: self.Category,
		ID:       ackToken,
		Username: self.Username,
		Address:  self.Address,
	}
	memoHex, err := memo.Encode(payload)
	if err != nil {
		return nil, err
	}

	txid, err := p.monitor.Run(ctx, self.Address, pending.PeerAddress, p.dust, p.fee, memoHex)
	if err != nil {
		return nil, err
	}

	if err := p.txs.MarkTxProcessed(txid); err != nil {
		return nil, fmt.Errorf("recording identity-ack txid: %w", err)
	}

	contact := &walletdb.Contact{
		Category:   pending.Category,
		LocalToken: ackToken,
		PeerToken:  pending.PeerToken,
		Username:   pending.PeerUsername,
		Address:    pending.PeerAddress,
	}
	if err := p.dir.Add(contact); err != nil {
		return nil, err
	}
	if err := p.store.DeletePending(pending.ID); err != nil {
		return nil, fmt.Errorf("removing pending request: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"username": contact.Username,
		"txid":     txid,
	}).Info("Contact request confirmed")

	return contact, nil
}

// Reject discards a pending inbound request. No wire message is sent back;
// the requester's handshake simply never completes. With ban set, further
// payloads from the address are dropped as well.
func (p *Protocol) Reject(pendingID uint, ban bool) error {
	pending, err := p.store.GetPendingByID(pendingID)
	if err != nil {
		return err
	}
	if pending == nil {
		return ErrPendingNotFound
	}

	if err := p.store.DeletePending(pending.ID); err != nil {
		return err
	}
	if ban {
		if err := p.dir.Ban(pending.PeerAddress); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"address": pending.PeerAddress,
		"banned":  ban,
	}).Info("Contact request rejected")

	return nil
}

// HandleIdentity completes a handshake this wallet initiated. The inbound
// identity-ack is matched against the outgoing request by address; an
// unsolicited identity push matches nothing and is silently ignored.
func (p *Protocol) HandleIdentity(form *memo.Payload) error {
	if form.ID == "" || form.Address == "" {
		return nil
	}

	out, err := p.store.FindOutgoingByAddress(form.Address)
	if err != nil {
		return err
	}
	if out == nil {
		logrus.WithField("address", form.Address).Debug("Unsolicited identity memo, ignoring")
		return nil
	}

	contact := &walletdb.Contact{
		Category:   form.Category,
		LocalToken: out.LocalToken,
		PeerToken:  form.ID,
		Username:   form.Username,
		Address:    form.Address,
	}
	if err := p.dir.Add(contact); err != nil {
		return err
	}
	if err := p.store.DeleteOutgoing(out.ID); err != nil {
		return fmt.Errorf("removing outgoing request: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"username": contact.Username,
		"address":  contact.Address,
	}).Info("Handshake completed, contact added")

	p.notify("contact_added", map[string]interface{}{
		"username": contact.Username,
		"address":  contact.Address,
	})

	return nil
}
