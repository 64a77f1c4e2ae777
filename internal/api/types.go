package api

import (
	"github.com/golang-jwt/jwt/v4"
	"github.com/memowire/memowire/internal/wallet"
)

// API exposes the messaging engine to the local UI process.
type API struct {
	Engine   *wallet.Engine
	HttpMode bool
}

func NewAPI(engine *wallet.Engine, httpMode bool) *API {
	return &API{Engine: engine, HttpMode: httpMode}
}

type Claims struct {
	jwt.RegisteredClaims
}

type AuthRequest struct {
	APIKey string `json:"api_key"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

type CreateIdentityRequest struct {
	Username string `json:"username"`
}

type RenameIdentityRequest struct {
	Username string `json:"username"`
}

type ContactRequestRequest struct {
	Address string `json:"address"`
}

type PendingActionRequest struct {
	ID  uint `json:"id"`
	Ban bool `json:"ban,omitempty"`
}

type BanRequest struct {
	Address string `json:"address"`
}

type SendMessageRequest struct {
	PeerToken string  `json:"peer_token"`
	Text      string  `json:"text"`
	Gift      float64 `json:"gift,omitempty"`
}

type MessageView struct {
	Author    string  `json:"author"`
	Text      string  `json:"text"`
	Gift      float64 `json:"gift,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type ConversationResponse struct {
	Read   []MessageView `json:"read"`
	Unread []MessageView `json:"unread"`
}

type ContactView struct {
	PeerToken string `json:"peer_token"`
	Username  string `json:"username"`
	Address   string `json:"address"`
	HasUnread bool   `json:"has_unread"`
}

type StatusResponse struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
