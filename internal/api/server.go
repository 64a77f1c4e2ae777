package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Server hosts the HTTP control surface the UI process talks to.
type Server struct {
	api    *API
	server *http.Server
}

func NewServer(a *API) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/auth", a.CORSMiddleware(a.HandleAuth))
	mux.HandleFunc("/identity", a.CORSMiddleware(a.JWTMiddleware(a.HandleIdentity)))
	mux.HandleFunc("/identity/rename", a.CORSMiddleware(a.JWTMiddleware(a.HandleRenameIdentity)))
	mux.HandleFunc("/contacts", a.CORSMiddleware(a.JWTMiddleware(a.HandleContacts)))
	mux.HandleFunc("/contacts/request", a.CORSMiddleware(a.JWTMiddleware(a.HandleContactRequest)))
	mux.HandleFunc("/contacts/ban", a.CORSMiddleware(a.JWTMiddleware(a.HandleBan)))
	mux.HandleFunc("/pending", a.CORSMiddleware(a.JWTMiddleware(a.HandlePending)))
	mux.HandleFunc("/pending/confirm", a.CORSMiddleware(a.JWTMiddleware(a.HandleConfirmPending)))
	mux.HandleFunc("/pending/reject", a.CORSMiddleware(a.JWTMiddleware(a.HandleRejectPending)))
	mux.HandleFunc("/conversation", a.CORSMiddleware(a.JWTMiddleware(a.HandleConversation)))
	mux.HandleFunc("/conversation/older", a.CORSMiddleware(a.JWTMiddleware(a.HandleOlderMessages)))
	mux.HandleFunc("/conversation/unread", a.CORSMiddleware(a.JWTMiddleware(a.HandleMoreUnread)))
	mux.HandleFunc("/messages/send", a.CORSMiddleware(a.JWTMiddleware(a.HandleSendMessage)))
	mux.HandleFunc("/status", a.CORSMiddleware(a.JWTMiddleware(a.HandleStatus)))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", viper.GetInt("api_port")),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{api: a, server: server}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		logrus.WithField("addr", s.server.Addr).Info("API server listening")
		if viper.GetBool("use_https") {
			errCh <- s.server.ListenAndServeTLS(viper.GetString("cert_file"), viper.GetString("key_file"))
		} else {
			errCh <- s.server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
