package messages

import (
	"context"
	"testing"
	"time"

	walletdb "github.com/memowire/memowire/internal/database"
	"github.com/memowire/memowire/internal/daemon"
	"github.com/memowire/memowire/internal/wallet/contacts"
	"github.com/memowire/memowire/internal/wallet/identity"
	"github.com/memowire/memowire/internal/wallet/operations"
	"github.com/memowire/memowire/lib/memo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	daemon.RPC

	balance    float64
	medianTime int64
	sent       []daemon.Recipient
}

func (f *fakeRPC) SendMemo(ctx context.Context, from string, recipients []daemon.Recipient, minConf int, fee float64) (string, error) {
	f.sent = append(f.sent, recipients...)
	return "opid", nil
}

func (f *fakeRPC) OperationStatus(ctx context.Context, opIDs []string) ([]daemon.Operation, error) {
	return []daemon.Operation{{ID: "opid", Status: daemon.StatusExecuting}}, nil
}

func (f *fakeRPC) OperationResult(ctx context.Context, opIDs []string) ([]daemon.Operation, error) {
	return []daemon.Operation{{ID: "opid", Status: daemon.StatusSuccess, Result: &daemon.OperationOutcome{TxID: "txid-msg"}}}, nil
}

func (f *fakeRPC) Balance(ctx context.Context, address string, minConf int) (float64, error) {
	return f.balance, nil
}

func (f *fakeRPC) MedianTime(ctx context.Context) (int64, error) {
	return f.medianTime, nil
}

type nopKeys struct{}

func (nopKeys) SaveKey(address, key string) error { return nil }

type fixture struct {
	store     *walletdb.Store
	transport *Transport
	rpc       *fakeRPC
	events    []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := walletdb.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.SetIdentity(&walletdb.Identity{
		Category: identity.CategoryIndividual,
		Username: "self",
		Address:  "zaddr-self",
	}))
	require.NoError(t, store.AddContact(&walletdb.Contact{
		Category:   "individual",
		LocalToken: "LT-bob",
		PeerToken:  "TB1",
		Username:   "bob",
		Address:    "zaddr-bob",
	}))

	rpc := &fakeRPC{balance: 1.0, medianTime: 1000}
	dir := contacts.New(store)
	idm := identity.New(store, rpc, nopKeys{})
	monitor := operations.New(rpc, time.Millisecond, 10)

	f := &fixture{store: store, rpc: rpc}
	f.transport = New(store, store, dir, monitor, rpc, idm, 0.0001, 0.0001, func(event string, data map[string]interface{}) {
		f.events = append(f.events, event)
	})
	return f
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)

	message, err := f.transport.Send(context.Background(), "TB1", "hello bob", 0)
	require.NoError(t, err)
	assert.Equal(t, AuthorSelf, message.Author)
	assert.Equal(t, int64(1000), message.Timestamp)

	require.Len(t, f.rpc.sent, 1)
	assert.Equal(t, "zaddr-bob", f.rpc.sent[0].Address)
	assert.InDelta(t, 0.0001, f.rpc.sent[0].Amount, 1e-9)

	payload, err := memo.Decode(f.rpc.sent[0].Memo)
	require.NoError(t, err)
	assert.Equal(t, memo.TypeMessage, payload.Type)
	assert.Equal(t, "LT-bob", payload.ID, "outgoing messages carry the contact's local token")
	assert.Equal(t, "self", payload.Username)
	assert.Equal(t, "hello bob", payload.Text)

	processed, err := f.store.IsTxProcessed("txid-msg")
	require.NoError(t, err)
	assert.True(t, processed)

	recent, err := f.store.RecentMessages("TB1", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.transport.Send(context.Background(), "TB1", "", 0)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.transport.Send(context.Background(), "nope", "hi", 0)
	assert.ErrorIs(t, err, ErrUnknownContact)

	f.rpc.balance = 0.00001
	_, err = f.transport.Send(context.Background(), "TB1", "hi", 0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, f.rpc.sent, "validation failures must not submit")

	f.rpc.balance = 1.0
	long := make([]byte, memo.Width)
	for i := range long {
		long[i] = 'x'
	}
	_, err = f.transport.Send(context.Background(), "TB1", string(long), 0)
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestSendTimestampsStrictlyIncrease(t *testing.T) {
	f := newFixture(t)

	// Median time stalls; each send must still get a fresh timestamp.
	var last int64
	for i := 0; i < 5; i++ {
		message, err := f.transport.Send(context.Background(), "TB1", "tick", 0)
		require.NoError(t, err)
		assert.Greater(t, message.Timestamp, last)
		last = message.Timestamp
	}
}

func TestHandleMessageInactiveGoesToUnread(t *testing.T) {
	f := newFixture(t)

	err := f.transport.HandleMessage(&memo.Payload{
		Type: memo.TypeMessage, ID: "TB1", Username: "bob", Text: "hi", Timestamp: 1000,
	}, 0.0001)
	require.NoError(t, err)

	unread, err := f.store.OldestUnread("TB1", 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, int64(1000), unread[0].Timestamp)

	read, err := f.store.RecentMessages("TB1", 10)
	require.NoError(t, err)
	assert.Empty(t, read)

	assert.Equal(t, []string{"new_message"}, f.events)
}

func TestHandleMessageActiveGoesToRead(t *testing.T) {
	f := newFixture(t)
	f.transport.SetActive("TB1")

	err := f.transport.HandleMessage(&memo.Payload{
		Type: memo.TypeMessage, ID: "TB1", Username: "bob", Text: "hi", Timestamp: 1000,
	}, 0.0001)
	require.NoError(t, err)

	read, err := f.store.RecentMessages("TB1", 10)
	require.NoError(t, err)
	assert.Len(t, read, 1)

	unread, err := f.store.OldestUnread("TB1", 10)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestHandleMessageUnknownTokenDropped(t *testing.T) {
	f := newFixture(t)

	err := f.transport.HandleMessage(&memo.Payload{
		Type: memo.TypeMessage, ID: "nobody", Username: "x", Text: "hi", Timestamp: 1,
	}, 0.0001)
	require.NoError(t, err)

	unread, err := f.store.OldestUnread("nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestHandleMessageRenamesContact(t *testing.T) {
	f := newFixture(t)

	err := f.transport.HandleMessage(&memo.Payload{
		Type: memo.TypeMessage, ID: "TB1", Username: "robert", Text: "new name", Timestamp: 1000,
	}, 0.0001)
	require.NoError(t, err)

	contact, err := f.store.FindContactByPeerToken("TB1")
	require.NoError(t, err)
	assert.Equal(t, "robert", contact.Username)
}

func TestGift(t *testing.T) {
	f := newFixture(t)

	assert.InDelta(t, 0.0, f.transport.Gift(0.0001), 1e-12, "pure dust is not a gift")
	assert.InDelta(t, 0.4999, f.transport.Gift(0.5), 1e-9)
}

func TestPaginationFlow(t *testing.T) {
	f := newFixture(t)

	for ts := int64(100); ts < 112; ts++ {
		require.NoError(t, f.store.RecordMessage(&walletdb.Message{PeerToken: "TB1", Author: "bob", Text: "old", Timestamp: ts}))
	}
	for ts := int64(200); ts < 212; ts++ {
		require.NoError(t, f.store.RecordUnread(&walletdb.UnreadMessage{PeerToken: "TB1", Author: "bob", Text: "new", Timestamp: ts}))
	}

	page, err := f.transport.Open("TB1")
	require.NoError(t, err)
	require.Len(t, page.Read, PageSize)
	require.Len(t, page.Unread, PageSize)
	assert.Equal(t, int64(111), page.Read[0].Timestamp, "read batch is newest first")
	assert.Equal(t, int64(200), page.Unread[0].Timestamp, "unread batch is oldest first")

	// Scroll up into history.
	older, err := f.transport.Older("TB1", page.Read[len(page.Read)-1].Timestamp)
	require.NoError(t, err)
	require.Len(t, older, PageSize)
	assert.Equal(t, int64(106), older[0].Timestamp)

	// Scroll down through unread: loaded items become read.
	lastLoaded := page.Unread[len(page.Unread)-1].Timestamp
	next, err := f.transport.MoreUnread("TB1", lastLoaded)
	require.NoError(t, err)
	require.Len(t, next, PageSize)
	assert.Equal(t, int64(205), next[0].Timestamp)

	count, err := f.store.UnreadCount("TB1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), count, "loaded unread items transitioned to read")
}
