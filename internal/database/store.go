package walletdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the wallet's local persistent store, backed by SQLite. Writes are
// serialized with a single mutex; write volume is human-paced so nothing
// finer grained is needed.
type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

// Open opens (or creates) the store at dbPath and migrates its schema. Use
// ":memory:" for an ephemeral store in tests.
func Open(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Configure GORM to be less verbose
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.AutoMigrate(
		&Identity{},
		&Contact{},
		&PendingRequest{},
		&OutgoingRequest{},
		&BannedAddress{},
		&Message{},
		&UnreadMessage{},
		&ProcessedTx{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Identity ---

// GetIdentity returns the wallet's identity, or nil if none has been created.
func (s *Store) GetIdentity() (*Identity, error) {
	var identity Identity
	err := s.db.First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// SetIdentity stores the wallet identity, replacing any previous row.
func (s *Store) SetIdentity(identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Identity{}).Error; err != nil {
			return err
		}
		return tx.Create(identity).Error
	})
}

// UpdateUsername changes the identity's display name in place.
func (s *Store) UpdateUsername(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Model(&Identity{}).Where("1 = 1").Update("username", username).Error
}

// --- Contacts ---

func (s *Store) AddContact(c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Create(c).Error
}

func (s *Store) GetContacts() ([]Contact, error) {
	var contacts []Contact
	if err := s.db.Order("username").Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

// FindContactByPeerToken locates a contact by the token the peer labels its
// messages with; nil if no contact matches.
func (s *Store) FindContactByPeerToken(token string) (*Contact, error) {
	var c Contact
	err := s.db.Where("peer_token = ?", token).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) HasContactWithAddress(address string) (bool, error) {
	var count int64
	if err := s.db.Model(&Contact{}).Where("address = ?", address).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) UpdateContactUsername(peerToken, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Model(&Contact{}).Where("peer_token = ?", peerToken).Update("username", username).Error
}

func (s *Store) DeleteContact(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(&Contact{}, id).Error
}

// --- Pending inbound requests ---

func (s *Store) AddPending(p *PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Create(p).Error
}

func (s *Store) GetPending() ([]PendingRequest, error) {
	var pending []PendingRequest
	if err := s.db.Find(&pending).Error; err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *Store) GetPendingByID(id uint) (*PendingRequest, error) {
	var p PendingRequest
	err := s.db.First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) HasPendingFromAddress(address string) (bool, error) {
	var count int64
	if err := s.db.Model(&PendingRequest{}).Where("peer_address = ?", address).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) HasPendingWithToken(token string) (bool, error) {
	var count int64
	if err := s.db.Model(&PendingRequest{}).Where("peer_token = ?", token).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) DeletePending(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(&PendingRequest{}, id).Error
}

// --- Outgoing requests ---

func (s *Store) AddOutgoing(r *OutgoingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Create(r).Error
}

func (s *Store) GetOutgoing() ([]OutgoingRequest, error) {
	var outgoing []OutgoingRequest
	if err := s.db.Find(&outgoing).Error; err != nil {
		return nil, err
	}
	return outgoing, nil
}

// FindOutgoingByAddress locates the outstanding request sent to an address;
// nil if none is outstanding.
func (s *Store) FindOutgoingByAddress(address string) (*OutgoingRequest, error) {
	var r OutgoingRequest
	err := s.db.Where("peer_address = ?", address).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) DeleteOutgoing(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(&OutgoingRequest{}, id).Error
}

// --- Ban list ---

// BanAddress adds an address to the ban list; banning twice is a no-op.
func (s *Store) BanAddress(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Where(BannedAddress{Address: address}).FirstOrCreate(&BannedAddress{Address: address}).Error
}

func (s *Store) IsBanned(address string) (bool, error) {
	var count int64
	if err := s.db.Model(&BannedAddress{}).Where("address = ?", address).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) GetBanned() ([]BannedAddress, error) {
	var banned []BannedAddress
	if err := s.db.Find(&banned).Error; err != nil {
		return nil, err
	}
	return banned, nil
}

// --- Messages ---

func (s *Store) RecordMessage(m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Create(m).Error
}

// RecentMessages returns the newest read messages for a contact, newest
// first.
func (s *Store) RecentMessages(peerToken string, limit int) ([]Message, error) {
	var messages []Message
	err := s.db.Where("peer_token = ?", peerToken).
		Order("timestamp desc").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MessagesBefore returns up to limit read messages strictly older than
// beforeTS, newest first.
func (s *Store) MessagesBefore(peerToken string, beforeTS int64, limit int) ([]Message, error) {
	var messages []Message
	err := s.db.Where("peer_token = ? AND timestamp < ?", peerToken, beforeTS).
		Order("timestamp desc").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) RecordUnread(m *UnreadMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Create(m).Error
}

// OldestUnread returns the oldest unread messages for a contact, oldest
// first.
func (s *Store) OldestUnread(peerToken string, limit int) ([]UnreadMessage, error) {
	var unread []UnreadMessage
	err := s.db.Where("peer_token = ?", peerToken).
		Order("timestamp asc").Limit(limit).Find(&unread).Error
	if err != nil {
		return nil, err
	}
	return unread, nil
}

// UnreadAfter returns up to limit unread messages strictly newer than
// afterTS, oldest first.
func (s *Store) UnreadAfter(peerToken string, afterTS int64, limit int) ([]UnreadMessage, error) {
	var unread []UnreadMessage
	err := s.db.Where("peer_token = ? AND timestamp > ?", peerToken, afterTS).
		Order("timestamp asc").Limit(limit).Find(&unread).Error
	if err != nil {
		return nil, err
	}
	return unread, nil
}

// MarkRead moves unread messages with timestamp <= upToTS into the read
// message set.
func (s *Store) MarkRead(peerToken string, upToTS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Transaction(func(tx *gorm.DB) error {
		var unread []UnreadMessage
		err := tx.Where("peer_token = ? AND timestamp <= ?", peerToken, upToTS).
			Order("timestamp asc").Find(&unread).Error
		if err != nil {
			return err
		}
		for _, u := range unread {
			msg := Message{
				PeerToken: u.PeerToken,
				Author:    u.Author,
				Text:      u.Text,
				Amount:    u.Amount,
				Timestamp: u.Timestamp,
			}
			if err := tx.Create(&msg).Error; err != nil {
				return err
			}
			if err := tx.Delete(&UnreadMessage{}, u.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UnreadCount(peerToken string) (int64, error) {
	var count int64
	if err := s.db.Model(&UnreadMessage{}).Where("peer_token = ?", peerToken).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// TokensWithUnread lists the peer tokens of contacts with unread traffic.
func (s *Store) TokensWithUnread() ([]string, error) {
	var tokens []string
	err := s.db.Model(&UnreadMessage{}).Distinct("peer_token").Pluck("peer_token", &tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// --- Processed transactions ---

// MarkTxProcessed records that a transaction id has been interpreted;
// recording the same id twice is a no-op.
func (s *Store) MarkTxProcessed(txid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Where(ProcessedTx{TxID: txid}).FirstOrCreate(&ProcessedTx{TxID: txid}).Error
}

func (s *Store) IsTxProcessed(txid string) (bool, error) {
	var count int64
	if err := s.db.Model(&ProcessedTx{}).Where("tx_id = ?", txid).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ProcessedTxIDs returns every recorded transaction id, for seeding the
// engine's in-memory dedup set at startup.
func (s *Store) ProcessedTxIDs() ([]string, error) {
	var txids []string
	if err := s.db.Model(&ProcessedTx{}).Pluck("tx_id", &txids).Error; err != nil {
		return nil, err
	}
	return txids, nil
}
