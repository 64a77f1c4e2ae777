package messages

import (
	"context"
	"errors"
	"fmt"
	"sync"

	walletdb "github.com/memowire/memowire/internal/database"
	"github.com/memowire/memowire/internal/daemon"
	"github.com/memowire/memowire/internal/wallet/contacts"
	"github.com/memowire/memowire/internal/wallet/identity"
	"github.com/memowire/memowire/internal/wallet/operations"
	"github.com/memowire/memowire/lib/memo"
	"github.com/sirupsen/logrus"
)

// PageSize is how many messages a single pagination step loads.
const PageSize = 5

// AuthorSelf is the author label on messages this wallet sent.
const AuthorSelf = "you"

var (
	ErrEmptyMessage        = errors.New("message text must not be empty")
	ErrMessageTooLong      = errors.New("message does not fit in the memo field")
	ErrUnknownContact      = errors.New("no contact matches this token")
	ErrInsufficientBalance = errors.New("balance does not cover amount and fee")
)

// Notify is invoked when an inbound message lands outside the open
// conversation.
type Notify func(event string, data map[string]interface{})

// Transport sends and receives chat messages over memo-carrying
// transactions and manages the read/unread split.
type Transport struct {
	store    *walletdb.Store
	dir      *contacts.Directory
	txs      operations.TxRecorder
	monitor  *operations.Monitor
	rpc      daemon.RPC
	identity *identity.Manager
	clock    *Clock
	dust     float64
	fee      float64
	notify   Notify

	mu     sync.Mutex
	active string // peer token of the conversation open in the view
}

func New(store *walletdb.Store, txs operations.TxRecorder, dir *contacts.Directory, monitor *operations.Monitor, rpc daemon.RPC, idm *identity.Manager, dust, fee float64, notify Notify) *Transport {
	if notify == nil {
		notify = func(string, map[string]interface{}) {}
	}
	return &Transport{
		store:    store,
		txs:      txs,
		dir:      dir,
		monitor:  monitor,
		rpc:      rpc,
		identity: idm,
		clock:    NewClock(),
		dust:     dust,
		fee:      fee,
		notify:   notify,
	}
}

// Clock exposes the session clock so the engine can feed inbound
// timestamps observed during routing.
func (t *Transport) Clock() *Clock { return t.clock }

// SetActive marks a conversation as open in the view; inbound messages for
// it land directly in the read set.
func (t *Transport) SetActive(peerToken string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = peerToken
}

// ClearActive marks no conversation as open.
func (t *Transport) ClearActive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = ""
}

func (t *Transport) isActive(peerToken string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active == peerToken
}

// Send submits a chat message to the contact identified by peerToken. A
// positive gift rides on top of the dust amount. The message is recorded
// locally only after the transaction confirms.
func (t *Transport) Send(ctx context.Context, peerToken, text string, gift float64) (*walletdb.Message, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}

	contact, err := t.dir.ByPeerToken(peerToken)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrUnknownContact
	}

	self, err := t.identity.Current()
	if err != nil {
		return nil, err
	}

	amount := t.dust + gift
	balance, err := t.rpc.Balance(ctx, self.Address, 1)
	if err != nil {
		return nil, fmt.Errorf("querying balance: %w", err)
	}
	if balance < amount+t.fee {
		return nil, ErrInsufficientBalance
	}

	medianTime, err := t.rpc.MedianTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying median time: %w", err)
	}
	timestamp := t.clock.Next(medianTime)

	payload := &memo.Payload{
		Type:      memo.TypeMessage,
		ID:        contact.LocalToken,
		Username:  self.Username,
		Text:      text,
		Timestamp: timestamp,
	}
	memoHex, err := memo.Encode(payload)
	if err != nil {
		if errors.Is(err, memo.ErrPayloadTooLarge) {
			return nil, ErrMessageTooLong
		}
		return nil, err
	}

	txid, err := t.monitor.Run(ctx, self.Address, contact.Address, amount, t.fee, memoHex)
	if err != nil {
		return nil, err
	}

	if err := t.txs.MarkTxProcessed(txid); err != nil {
		return nil, fmt.Errorf("recording message txid: %w", err)
	}

	message := &walletdb.Message{
		PeerToken: peerToken,
		Author:    AuthorSelf,
		Text:      text,
		Amount:    amount,
		Timestamp: timestamp,
	}
	if err := t.store.RecordMessage(message); err != nil {
		return nil, fmt.Errorf("recording message: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"to":   contact.Username,
		"txid": txid,
	}).Info("Message sent")

	return message, nil
}

// HandleMessage routes an inbound message memo. Unknown tokens are dropped:
// a message is only accepted from an established relationship. A changed
// author name updates the cached contact username, which is how peers
// propagate renames without re-handshaking.
func (t *Transport) HandleMessage(form *memo.Payload, amount float64) error {
	contact, err := t.dir.ByPeerToken(form.ID)
	if err != nil {
		return err
	}
	if contact == nil {
		logrus.WithField("token", form.ID).Debug("Message memo with unknown token, dropping")
		return nil
	}

	t.clock.Observe(form.Timestamp)

	if form.Username != "" && form.Username != contact.Username {
		if err := t.store.UpdateContactUsername(contact.PeerToken, form.Username); err != nil {
			return fmt.Errorf("updating contact username: %w", err)
		}
		logrus.WithFields(logrus.Fields{
			"old": contact.Username,
			"new": form.Username,
		}).Info("Contact renamed itself")
	}

	if t.isActive(contact.PeerToken) {
		message := &walletdb.Message{
			PeerToken: contact.PeerToken,
			Author:    form.Username,
			Text:      form.Text,
			Amount:    amount,
			Timestamp: form.Timestamp,
		}
		if err := t.store.RecordMessage(message); err != nil {
			return fmt.Errorf("recording message: %w", err)
		}
		return nil
	}

	unread := &walletdb.UnreadMessage{
		PeerToken: contact.PeerToken,
		Author:    form.Username,
		Text:      form.Text,
		Amount:    amount,
		Timestamp: form.Timestamp,
	}
	if err := t.store.RecordUnread(unread); err != nil {
		return fmt.Errorf("recording unread message: %w", err)
	}

	t.notify("new_message", map[string]interface{}{
		"from": form.Username,
	})

	return nil
}

// Gift reports the gift portion of a message's carried value: anything
// beyond the dust amount. Purely a display concern.
func (t *Transport) Gift(amount float64) float64 {
	if amount > t.dust {
		return amount - t.dust
	}
	return 0
}

// Page is the initial window of a conversation: the newest read messages
// (newest first) and the oldest unread ones (oldest first).
type Page struct {
	Read   []walletdb.Message
	Unread []walletdb.UnreadMessage
}

// Open loads the initial page of a conversation and marks it active.
func (t *Transport) Open(peerToken string) (*Page, error) {
	contact, err := t.dir.ByPeerToken(peerToken)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrUnknownContact
	}

	read, err := t.store.RecentMessages(peerToken, PageSize)
	if err != nil {
		return nil, err
	}
	unread, err := t.store.OldestUnread(peerToken, PageSize)
	if err != nil {
		return nil, err
	}

	t.SetActive(peerToken)
	return &Page{Read: read, Unread: unread}, nil
}

// Older loads the next page of history strictly older than beforeTS.
func (t *Transport) Older(peerToken string, beforeTS int64) ([]walletdb.Message, error) {
	return t.store.MessagesBefore(peerToken, beforeTS, PageSize)
}

// MoreUnread marks everything up to lastLoadedTS as read and loads up to
// PageSize unread messages strictly newer than it.
func (t *Transport) MoreUnread(peerToken string, lastLoadedTS int64) ([]walletdb.UnreadMessage, error) {
	if err := t.store.MarkRead(peerToken, lastLoadedTS); err != nil {
		return nil, fmt.Errorf("marking messages read: %w", err)
	}
	return t.store.UnreadAfter(peerToken, lastLoadedTS, PageSize)
}

// UnreadTokens lists the contacts with unread traffic, for flagging in the
// contact list.
func (t *Transport) UnreadTokens() ([]string, error) {
	return t.store.TokensWithUnread()
}
