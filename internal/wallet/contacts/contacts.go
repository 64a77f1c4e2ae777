package contacts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	walletdb "github.com/memowire/memowire/internal/database"
	"github.com/sirupsen/logrus"
)

// Validation failures surfaced before any submission happens. No state is
// mutated when one of these is returned.
var (
	ErrAlreadyContact     = errors.New("address already belongs to a contact")
	ErrRequestOutstanding = errors.New("a contact request to this address is already outstanding")
	ErrRequestPending     = errors.New("this address already has a pending inbound request")
	ErrSelfRequest        = errors.New("cannot send a contact request to your own address")
	ErrAddressBanned      = errors.New("address is banned")
	ErrDuplicatePeerToken = errors.New("a contact with this peer token already exists")
	ErrEmptyAddress       = errors.New("address must not be empty")
	ErrInvalidAddress     = errors.New("not a shielded address")
)

// MintToken returns a fresh opaque 32-character relationship token.
func MintToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Directory owns contacts, pending inbound requests, outstanding outbound
// requests and the ban list.
type Directory struct {
	store *walletdb.Store
}

func New(store *walletdb.Store) *Directory {
	return &Directory{store: store}
}

// EnsureCanRequest validates that a contact request may be sent to the given
// address. Each rejection is a distinct, user-visible error.
func (d *Directory) EnsureCanRequest(address, selfAddress string) error {
	if address == "" {
		return ErrEmptyAddress
	}
	// Shielded addresses are z-prefixed; anything else cannot carry a memo,
	// so reject it before a transaction is ever submitted.
	if !strings.HasPrefix(address, "z") || strings.ContainsAny(address, " \t\r\n") {
		return ErrInvalidAddress
	}
	if address == selfAddress {
		return ErrSelfRequest
	}

	hasContact, err := d.store.HasContactWithAddress(address)
	if err != nil {
		return fmt.Errorf("checking contacts: %w", err)
	}
	if hasContact {
		return ErrAlreadyContact
	}

	out, err := d.store.FindOutgoingByAddress(address)
	if err != nil {
		return fmt.Errorf("checking outgoing requests: %w", err)
	}
	if out != nil {
		return ErrRequestOutstanding
	}

	hasPending, err := d.store.HasPendingFromAddress(address)
	if err != nil {
		return fmt.Errorf("checking pending requests: %w", err)
	}
	if hasPending {
		return ErrRequestPending
	}

	return nil
}

// Add stores a new contact, enforcing peer-token uniqueness. The peer token
// is the routing key for inbound messages so a collision would misroute
// traffic.
func (d *Directory) Add(c *walletdb.Contact) error {
	existing, err := d.store.FindContactByPeerToken(c.PeerToken)
	if err != nil {
		return fmt.Errorf("checking peer token: %w", err)
	}
	if existing != nil {
		return ErrDuplicatePeerToken
	}

	if err := d.store.AddContact(c); err != nil {
		return fmt.Errorf("storing contact: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"username": c.Username,
		"address":  c.Address,
	}).Info("Contact added")

	return nil
}

// ByPeerToken locates a contact by the token inbound messages carry; nil if
// no relationship matches.
func (d *Directory) ByPeerToken(token string) (*walletdb.Contact, error) {
	return d.store.FindContactByPeerToken(token)
}

// List returns every contact.
func (d *Directory) List() ([]walletdb.Contact, error) {
	return d.store.GetContacts()
}

// Remove deletes a contact record. History for the contact is kept.
func (d *Directory) Remove(id uint) error {
	return d.store.DeleteContact(id)
}

// Pending returns the inbound requests awaiting confirm/reject.
func (d *Directory) Pending() ([]walletdb.PendingRequest, error) {
	return d.store.GetPending()
}

// Outgoing returns the outbound requests whose ack has not arrived.
func (d *Directory) Outgoing() ([]walletdb.OutgoingRequest, error) {
	return d.store.GetOutgoing()
}

// Ban adds an address to the ban list; inbound payloads from it are dropped
// from then on.
func (d *Directory) Ban(address string) error {
	if address == "" {
		return ErrEmptyAddress
	}
	if err := d.store.BanAddress(address); err != nil {
		return err
	}
	logrus.WithField("address", address).Info("Address banned")
	return nil
}

// IsBanned reports whether inbound payloads from the address are dropped.
func (d *Directory) IsBanned(address string) (bool, error) {
	return d.store.IsBanned(address)
}

// Banned lists the banned addresses.
func (d *Directory) Banned() ([]walletdb.BannedAddress, error) {
	return d.store.GetBanned()
}
