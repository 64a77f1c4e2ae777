package main

import (
	"io"
	"os"
	"testing"

	"github.com/memowire/memowire/internal/daemon"
	walletdb "github.com/memowire/memowire/internal/database"
	"github.com/memowire/memowire/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, fn func() error) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	require.NoError(t, fn())

	w.Close()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestPrintContactsListsContactsAndPending(t *testing.T) {
	store, err := walletdb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.AddContact(&walletdb.Contact{
		LocalToken: "lt1", PeerToken: "pt1", Username: "bob", Address: "zaddr-bob",
	}))
	require.NoError(t, store.AddPending(&walletdb.PendingRequest{
		PeerToken: "pt2", PeerUsername: "carol", PeerAddress: "zaddr-carol",
	}))

	rpc := daemon.NewClient("http://127.0.0.1:0", "user", "password")
	engine := wallet.NewEngine(store, rpc, &wallet.FileKeyStore{Dir: t.TempDir()}, nil)

	out := captureOutput(t, func() error { return printContacts(engine) })

	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "zaddr-bob")
	assert.Contains(t, out, "carol")
	assert.Contains(t, out, "zaddr-carol")
}
