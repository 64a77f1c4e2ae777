package identity

import (
	"context"
	"errors"
	"testing"

	walletdb "github.com/memowire/memowire/internal/database"
	"github.com/memowire/memowire/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	daemon.RPC

	address      string
	key          string
	newAddrErr   error
	exportKeyErr error
	imported     []string
}

func (f *fakeRPC) GetNewAddress(ctx context.Context) (string, error) {
	return f.address, f.newAddrErr
}

func (f *fakeRPC) ExportKey(ctx context.Context, address string) (string, error) {
	return f.key, f.exportKeyErr
}

func (f *fakeRPC) ImportKey(ctx context.Context, key string) error {
	f.imported = append(f.imported, key)
	return nil
}

type memKeyStore struct {
	keys map[string]string
}

func (m *memKeyStore) SaveKey(address, key string) error {
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	m.keys[address] = key
	return nil
}

func newTestManager(t *testing.T, rpc daemon.RPC) (*Manager, *walletdb.Store, *memKeyStore) {
	t.Helper()
	store, err := walletdb.Open(":memory:")
	require.NoError(t, err)
	keys := &memKeyStore{}
	return New(store, rpc, keys), store, keys
}

func TestCreateIdentity(t *testing.T) {
	rpc := &fakeRPC{address: "zaddr-self", key: "secret-spending-key"}
	manager, _, keys := newTestManager(t, rpc)

	identity, err := manager.Create(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, CategoryIndividual, identity.Category)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "zaddr-self", identity.Address)
	assert.Equal(t, "secret-spending-key", keys.keys["zaddr-self"])

	current, err := manager.Current()
	require.NoError(t, err)
	assert.Equal(t, identity.Address, current.Address)

	_, err = manager.Create(context.Background(), "again")
	assert.ErrorIs(t, err, ErrIdentityExists)
}

func TestCreateIdentityDaemonFailure(t *testing.T) {
	rpc := &fakeRPC{newAddrErr: errors.New("keypool exhausted")}
	manager, store, _ := newTestManager(t, rpc)

	_, err := manager.Create(context.Background(), "alice")

	var genErr *AddressGenerationError
	require.ErrorAs(t, err, &genErr)

	identity, err := store.GetIdentity()
	require.NoError(t, err)
	assert.Nil(t, identity, "identity must not be created on daemon failure")
}

func TestCreateIdentityExportFailure(t *testing.T) {
	rpc := &fakeRPC{address: "zaddr-self", exportKeyErr: errors.New("address not found")}
	manager, store, _ := newTestManager(t, rpc)

	_, err := manager.Create(context.Background(), "alice")

	var genErr *AddressGenerationError
	require.ErrorAs(t, err, &genErr)

	identity, err := store.GetIdentity()
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestRename(t *testing.T) {
	rpc := &fakeRPC{address: "zaddr-self", key: "k"}
	manager, _, _ := newTestManager(t, rpc)

	assert.ErrorIs(t, manager.Rename("bob"), ErrNoIdentity)

	_, err := manager.Create(context.Background(), "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, manager.Rename(""), ErrUsernameEmpty)
	assert.ErrorIs(t, manager.Rename("alice"), ErrDuplicateUsername)

	require.NoError(t, manager.Rename("alicia"))
	current, err := manager.Current()
	require.NoError(t, err)
	assert.Equal(t, "alicia", current.Username)
}

func TestRestore(t *testing.T) {
	rpc := &fakeRPC{}
	manager, _, keys := newTestManager(t, rpc)

	identity, err := manager.Restore(context.Background(), "alice", "zaddr-old", "old-key")
	require.NoError(t, err)
	assert.Equal(t, "zaddr-old", identity.Address)
	assert.Equal(t, []string{"old-key"}, rpc.imported)
	assert.Equal(t, "old-key", keys.keys["zaddr-old"])
}
