package walletdb

// Identity is this wallet's own messaging identity. Exactly one row exists
// once the identity has been created. The spending key is not stored here;
// it lives encrypted in the wallet file.
type Identity struct {
	ID       uint   `gorm:"primarykey"`
	Category string `gorm:"size:32"`
	Username string `gorm:"size:64"`
	Address  string `gorm:"uniqueIndex;size:128"`
}

// Contact is an established messaging relationship. PeerToken is the routing
// key for inbound messages and is unique across contacts; LocalToken labels
// messages this wallet sends to the peer.
type Contact struct {
	ID         uint   `gorm:"primarykey"`
	Category   string `gorm:"size:32"`
	LocalToken string `gorm:"size:32"`
	PeerToken  string `gorm:"uniqueIndex;size:32"`
	Username   string `gorm:"size:64"`
	Address    string `gorm:"index;size:128"`
}

// PendingRequest is an inbound contact request awaiting manual
// confirm/reject.
type PendingRequest struct {
	ID           uint   `gorm:"primarykey"`
	Category     string `gorm:"size:32"`
	PeerToken    string `gorm:"uniqueIndex;size:32"`
	PeerUsername string `gorm:"size:64"`
	PeerAddress  string `gorm:"size:128"`
}

// OutgoingRequest is a contact request this wallet has sent and whose
// identity-ack has not arrived yet.
type OutgoingRequest struct {
	ID          uint   `gorm:"primarykey"`
	LocalToken  string `gorm:"size:32"`
	PeerAddress string `gorm:"uniqueIndex;size:128"`
}

// BannedAddress is an address whose inbound payloads are silently dropped.
type BannedAddress struct {
	ID      uint   `gorm:"primarykey"`
	Address string `gorm:"uniqueIndex;size:128"`
}

// Message is a chat message the user has already read (or sent).
type Message struct {
	ID        uint    `gorm:"primarykey"`
	PeerToken string  `gorm:"index:idx_messages_token_ts;size:32"`
	Author    string  `gorm:"size:64"`
	Text      string  `gorm:"size:512"`
	Amount    float64 // value carried by the transaction, in coins
	Timestamp int64   `gorm:"index:idx_messages_token_ts"`
}

// UnreadMessage is a received chat message the user has not scrolled to yet.
type UnreadMessage struct {
	ID        uint    `gorm:"primarykey"`
	PeerToken string  `gorm:"index:idx_unread_token_ts;size:32"`
	Author    string  `gorm:"size:64"`
	Text      string  `gorm:"size:512"`
	Amount    float64
	Timestamp int64 `gorm:"index:idx_unread_token_ts"`
}

// ProcessedTx is a transaction id the engine has already interpreted. Every
// decoded transaction, valid or not, is recorded here exactly once.
type ProcessedTx struct {
	ID   uint   `gorm:"primarykey"`
	TxID string `gorm:"uniqueIndex;size:64"`
}
