package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/memowire/memowire/internal/wallet/contacts"
	"github.com/memowire/memowire/internal/wallet/handshake"
	"github.com/memowire/memowire/internal/wallet/identity"
	"github.com/memowire/memowire/internal/wallet/messages"
	"github.com/memowire/memowire/internal/wallet/operations"
	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// statusForError maps engine errors onto HTTP statuses: validation failures
// are the client's problem, daemon failures are upstream's.
func statusForError(err error) int {
	var subErr *operations.SubmissionError
	var opErr *operations.OperationError
	var genErr *identity.AddressGenerationError

	switch {
	case errors.Is(err, contacts.ErrAlreadyContact),
		errors.Is(err, contacts.ErrRequestOutstanding),
		errors.Is(err, contacts.ErrRequestPending),
		errors.Is(err, contacts.ErrSelfRequest),
		errors.Is(err, contacts.ErrEmptyAddress),
		errors.Is(err, contacts.ErrInvalidAddress),
		errors.Is(err, identity.ErrUsernameEmpty),
		errors.Is(err, identity.ErrDuplicateUsername),
		errors.Is(err, identity.ErrIdentityExists),
		errors.Is(err, messages.ErrEmptyMessage),
		errors.Is(err, messages.ErrMessageTooLong),
		errors.Is(err, messages.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrNoIdentity),
		errors.Is(err, messages.ErrUnknownContact),
		errors.Is(err, handshake.ErrPendingNotFound):
		return http.StatusNotFound
	case errors.As(err, &subErr), errors.As(err, &opErr), errors.As(err, &genErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		current, err := a.Engine.Identity.Current()
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, current)
	case http.MethodPost:
		var req CreateIdentityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		created, err := a.Engine.Identity.Create(r.Context(), req.Username)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) HandleRenameIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RenameIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.Engine.Identity.Rename(req.Username); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) HandleContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list, err := a.Engine.Contacts.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	unreadTokens, err := a.Engine.Transport.UnreadTokens()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	hasUnread := make(map[string]bool, len(unreadTokens))
	for _, token := range unreadTokens {
		hasUnread[token] = true
	}

	views := make([]ContactView, len(list))
	for i, c := range list {
		views[i] = ContactView{
			PeerToken: c.PeerToken,
			Username:  c.Username,
			Address:   c.Address,
			HasUnread: hasUnread[c.PeerToken],
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) HandleContactRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ContactRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.Engine.Handshake.SendRequest(r.Context(), req.Address); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) HandlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := a.Engine.Contacts.Pending()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (a *API) HandleConfirmPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PendingActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	contact, err := a.Engine.Handshake.Confirm(r.Context(), req.ID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (a *API) HandleRejectPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PendingActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.Engine.Handshake.Reject(req.ID, req.Ban); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) HandleBan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.Engine.Contacts.Ban(req.Address); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) HandleConversation(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token query parameter required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		page, err := a.Engine.Transport.Open(token)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}

		resp := ConversationResponse{
			Read:   make([]MessageView, len(page.Read)),
			Unread: make([]MessageView, len(page.Unread)),
		}
		for i, m := range page.Read {
			resp.Read[i] = MessageView{Author: m.Author, Text: m.Text, Gift: a.Engine.Transport.Gift(m.Amount), Timestamp: m.Timestamp}
		}
		for i, m := range page.Unread {
			resp.Unread[i] = MessageView{Author: m.Author, Text: m.Text, Gift: a.Engine.Transport.Gift(m.Amount), Timestamp: m.Timestamp}
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodDelete:
		a.Engine.Transport.ClearActive()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) HandleOlderMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := r.URL.Query().Get("token")
	before, err := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	if token == "" || err != nil {
		writeError(w, http.StatusBadRequest, "token and before query parameters required")
		return
	}

	older, err := a.Engine.Transport.Older(token, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]MessageView, len(older))
	for i, m := range older {
		views[i] = MessageView{Author: m.Author, Text: m.Text, Gift: a.Engine.Transport.Gift(m.Amount), Timestamp: m.Timestamp}
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) HandleMoreUnread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := r.URL.Query().Get("token")
	after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if token == "" || err != nil {
		writeError(w, http.StatusBadRequest, "token and after query parameters required")
		return
	}

	unread, err := a.Engine.Transport.MoreUnread(token, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]MessageView, len(unread))
	for i, m := range unread {
		views[i] = MessageView{Author: m.Author, Text: m.Text, Gift: a.Engine.Transport.Gift(m.Amount), Timestamp: m.Timestamp}
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := a.Engine.Transport.Send(r.Context(), req.PeerToken, req.Text, req.Gift)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, MessageView{
		Author:    message.Author,
		Text:      message.Text,
		Gift:      req.Gift,
		Timestamp: message.Timestamp,
	})
}

func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	current, err := a.Engine.Identity.Current()
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	balance, err := a.Engine.RPC.Balance(r.Context(), current.Address, 1)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Address: current.Address, Balance: balance})
}
