package identity

import (
	"context"
	"errors"
	"fmt"

	walletdb "github.com/memowire/memowire/internal/database"
	"github.com/memowire/memowire/internal/daemon"
	"github.com/sirupsen/logrus"
)

// CategoryIndividual is the only identity category minted today.
const CategoryIndividual = "individual"

var (
	ErrNoIdentity        = errors.New("no messaging identity has been created yet")
	ErrIdentityExists    = errors.New("a messaging identity already exists")
	ErrUsernameEmpty     = errors.New("username must not be empty")
	ErrDuplicateUsername = errors.New("new username matches the current one")
)

// AddressGenerationError reports that the daemon could not mint or export
// the identity address. The identity is not created.
type AddressGenerationError struct {
	Err error
}

func (e *AddressGenerationError) Error() string {
	return fmt.Sprintf("address generation failed: %v", e.Err)
}

func (e *AddressGenerationError) Unwrap() error { return e.Err }

// KeyStore persists the identity's spending key outside the database.
type KeyStore interface {
	SaveKey(address, key string) error
}

// Manager owns the wallet's messaging identity.
type Manager struct {
	store *walletdb.Store
	rpc   daemon.RPC
	keys  KeyStore
}

func New(store *walletdb.Store, rpc daemon.RPC, keys KeyStore) *Manager {
	return &Manager{store: store, rpc: rpc, keys: keys}
}

// Current returns the stored identity, or ErrNoIdentity.
func (m *Manager) Current() (*walletdb.Identity, error) {
	identity, err := m.store.GetIdentity()
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ErrNoIdentity
	}
	return identity, nil
}

// Create mints a fresh shielded address for messaging, exports and stores
// its spending key, and persists the identity. Done once per wallet.
func (m *Manager) Create(ctx context.Context, username string) (*walletdb.Identity, error) {
	if username == "" {
		return nil, ErrUsernameEmpty
	}

	existing, err := m.store.GetIdentity()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrIdentityExists
	}

	address, err := m.rpc.GetNewAddress(ctx)
	if err != nil {
		return nil, &AddressGenerationError{Err: err}
	}

	key, err := m.rpc.ExportKey(ctx, address)
	if err != nil {
		return nil, &AddressGenerationError{Err: err}
	}

	if err := m.keys.SaveKey(address, key); err != nil {
		return nil, fmt.Errorf("saving identity key: %w", err)
	}

	identity := &walletdb.Identity{
		Category: CategoryIndividual,
		Username: username,
		Address:  address,
	}
	if err := m.store.SetIdentity(identity); err != nil {
		return nil, fmt.Errorf("persisting identity: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"username": username,
		"address":  address,
	}).Info("Messaging identity created")

	return identity, nil
}

// Rename changes the identity's display name. Peers learn of the rename
// through the author field of subsequent messages; existing contact records
// on their side are not resynced.
func (m *Manager) Rename(username string) error {
	if username == "" {
		return ErrUsernameEmpty
	}

	current, err := m.Current()
	if err != nil {
		return err
	}
	if current.Username == username {
		return ErrDuplicateUsername
	}

	if err := m.store.UpdateUsername(username); err != nil {
		return fmt.Errorf("updating username: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"old": current.Username,
		"new": username,
	}).Info("Identity renamed")

	return nil
}

// Restore imports an existing spending key into the daemon and adopts the
// address as this wallet's identity.
func (m *Manager) Restore(ctx context.Context, username, address, key string) (*walletdb.Identity, error) {
	if username == "" {
		return nil, ErrUsernameEmpty
	}

	existing, err := m.store.GetIdentity()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrIdentityExists
	}

	if err := m.rpc.ImportKey(ctx, key); err != nil {
		return nil, fmt.Errorf("importing spending key: %w", err)
	}

	if err := m.keys.SaveKey(address, key); err != nil {
		return nil, fmt.Errorf("saving identity key: %w", err)
	}

	identity := &walletdb.Identity{
		Category: CategoryIndividual,
		Username: username,
		Address:  address,
	}
	if err := m.store.SetIdentity(identity); err != nil {
		return nil, fmt.Errorf("persisting identity: %w", err)
	}

	return identity, nil
}
