package handshake

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

// fakeRPC confirms every submitted operation immediately and remembers the
// memos it was asked to send.
type fakeRPC struct {
	daemon.RPC

	nextTxID string
	sent     []daemon.Recipient
}

func (f *fakeRPC) SendMemo(ctx context.Context, from string, recipients []daemon.Recipient, minConf int, fee float64) (string, error) {
	f.sent = append(f.sent, recipients...)
	return "opid", nil
}

func (f *fakeRPC) OperationStatus(ctx context.Context, opIDs []string) ([]daemon.Operation, error) {
	return []daemon.Operation{{ID: "opid", Status: daemon.StatusExecuting}}, nil
}

func (f *fakeRPC) OperationResult(ctx context.Context, opIDs []string) ([]daemon.Operation, error) {
	txid := f.nextTxID
	if txid == "" {
		txid = "txid-1"
	}
	return []daemon.Operation{{ID: "opid", Status: daemon.StatusSuccess, Result: &daemon.OperationOutcome{TxID: txid}}}, nil
}

type fixture struct {
	store    *walletdb.Store
	dir      *contacts.Directory
	protocol *Protocol
	rpc      *fakeRPC
	events   []string
}

type nopKeys struct{}

func (nopKeys) SaveKey(address, key string) error { return nil }

func newFixture(t *testing.T, selfAddress string) *fixture {
	t.Helper()

	store, err := walletdb.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.SetIdentity(&walletdb.Identity{
		Category: identity.CategoryIndividual,
		Username: "self",
		Address:  selfAddress,
	}))

	rpc := &fakeRPC{}
	dir := contacts.New(store)
	idm := identity.New(store, rpc, nopKeys{})
	monitor := operations.New(rpc, time.Millisecond, 10)

	f := &fixture{store: store, dir: dir, rpc: rpc}
	f.protocol = New(store, store, dir, monitor, idm, 0.0001, 0.0001, func(event string, data map[string]interface{}) {
		f.events = append(f.events, event)
	})
	return f
}

func lastMemoPayload(t *testing.T, rpc *fakeRPC) *memo.Payload {
	t.Helper()
	require.NotEmpty(t, rpc.sent)
	payload, err := memo.Decode(rpc.sent[len(rpc.sent)-1].Memo)
	require.NoError(t, err)
	return payload
}

func TestSendRequest(t *testing.T) {
	f := newFixture(t, "zaddr-a")

	require.NoError(t, f.protocol.SendRequest(context.Background(), "zaddr-b"))

	payload := lastMemoPayload(t, f.rpc)
	assert.Equal(t, memo.TypeRequest, payload.Type)
	assert.Equal(t, "self", payload.Username)
	assert.Equal(t, "zaddr-a", payload.Address)
	assert.Len(t, payload.ID, 32)

	out, err := f.store.FindOutgoingByAddress("zaddr-b")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, payload.ID, out.LocalToken)

	// The request's own txid must never be reinterpreted by the poll loop.
	processed, err := f.store.IsTxProcessed("txid-1")
	require.NoError(t, err)
	assert.True(t, processed)

	// Duplicate preconditions: outstanding request blocks a second one.
	err = f.protocol.SendRequest(context.Background(), "zaddr-b")
	assert.ErrorIs(t, err, contacts.ErrRequestOutstanding)
}

func TestHandleRequestCreatesPending(t *testing.T) {
	f := newFixture(t, "zaddr-b")

	form := &memo.Payload{
		Type:     memo.TypeRequest,
		Category: "individual",
		ID:       "TA1",
		Username: "alice",
		Address:  "zaddr-a",
	}
	require.NoError(t, f.protocol.HandleRequest(form))

	pending, err := f.store.GetPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "TA1", pending[0].PeerToken)
	assert.Equal(t, "alice", pending[0].PeerUsername)
	assert.Equal(t, "zaddr-a", pending[0].PeerAddress)
	assert.Equal(t, []string{"new_request"}, f.events)

	// A replay of the same request must not create a second entry.
	require.NoError(t, f.protocol.HandleRequest(form))
	pending, err = f.store.GetPending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestConfirmCreatesContactKeyedToRequesterToken(t *testing.T) {
	f := newFixture(t, "zaddr-b")

	require.NoError(t, f.protocol.HandleRequest(&memo.Payload{
		Type: memo.TypeRequest, Category: "individual",
		ID: "TA1", Username: "alice", Address: "zaddr-a",
	}))
	pending, err := f.store.GetPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	contact, err := f.protocol.Confirm(context.Background(), pending[0].ID)
	require.NoError(t, err)

	// The ack memo carries the freshly minted token.
	payload := lastMemoPayload(t, f.rpc)
	assert.Equal(t, memo.TypeIdentity, payload.Type)
	assert.Len(t, payload.ID, 32)
	assert.NotEqual(t, "TA1", payload.ID)

	// Our contact record for the requester: their token routes inbound,
	// our minted token labels outbound.
	assert.Equal(t, "TA1", contact.PeerToken)
	assert.Equal(t, payload.ID, contact.LocalToken)
	assert.Equal(t, "alice", contact.Username)

	remaining, err := f.store.GetPending()
	require.NoError(t, err)
	assert.Empty(t, remaining, "pending entry removed after confirm")
}

func TestRejectWithBan(t *testing.T) {
	f := newFixture(t, "zaddr-b")

	require.NoError(t, f.protocol.HandleRequest(&memo.Payload{
		Type: memo.TypeRequest, ID: "TA1", Username: "mallory", Address: "zaddr-m",
	}))
	pending, err := f.store.GetPending()
	require.NoError(t, err)

	require.NoError(t, f.protocol.Reject(pending[0].ID, true))

	remaining, err := f.store.GetPending()
	require.NoError(t, err)
	assert.Empty(t, remaining)

	banned, err := f.dir.IsBanned("zaddr-m")
	require.NoError(t, err)
	assert.True(t, banned)

	// Nothing was sent back to the requester.
	assert.Empty(t, f.rpc.sent)

	assert.ErrorIs(t, f.protocol.Reject(pending[0].ID, false), ErrPendingNotFound)
}

func TestHandleIdentityCompletesHandshake(t *testing.T) {
	f := newFixture(t, "zaddr-a")

	require.NoError(t, f.protocol.SendRequest(context.Background(), "zaddr-b"))
	out, err := f.store.FindOutgoingByAddress("zaddr-b")
	require.NoError(t, err)
	localToken := out.LocalToken

	require.NoError(t, f.protocol.HandleIdentity(&memo.Payload{
		Type: memo.TypeIdentity, Category: "individual",
		ID: "TB1", Username: "bob", Address: "zaddr-b",
	}))

	list, err := f.dir.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, localToken, list[0].LocalToken)
	assert.Equal(t, "TB1", list[0].PeerToken)
	assert.Equal(t, "bob", list[0].Username)
	assert.Equal(t, "zaddr-b", list[0].Address)

	out, err = f.store.FindOutgoingByAddress("zaddr-b")
	require.NoError(t, err)
	assert.Nil(t, out, "outgoing request removed once the ack arrives")
}

func TestHandleIdentityUnsolicitedIsIgnored(t *testing.T) {
	f := newFixture(t, "zaddr-a")

	require.NoError(t, f.protocol.HandleIdentity(&memo.Payload{
		Type: memo.TypeIdentity, ID: "TX1", Username: "stranger", Address: "zaddr-x",
	}))

	list, err := f.dir.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}
