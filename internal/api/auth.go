package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var jwtKey []byte

// GetJWTKey loads the HMAC signing key from the configured key directory,
// generating one on first use.
func GetJWTKey() []byte {
	if jwtKey != nil {
		return jwtKey
	}

	dir := viper.GetString("jwt_keys_dir")
	path := filepath.Join(dir, "hmac.key")

	key, err := os.ReadFile(path)
	if err == nil && len(key) >= 32 {
		jwtKey = key
		return jwtKey
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		logrus.WithError(err).Fatal("Failed to generate JWT key")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		logrus.WithError(err).Fatal("Failed to create JWT key directory")
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		logrus.WithError(err).Fatal("Failed to write JWT key")
	}

	jwtKey = key
	return jwtKey
}

// HandleAuth exchanges the configured wallet API key for a session JWT.
func (a *API) HandleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expected := viper.GetString("wallet_api_key")
	if expected == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(expected)) != 1 {
		logrus.Warn("API authentication failed")
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(GetJWTKey())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    signed,
		HttpOnly: true,
		Secure:   !a.HttpMode,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})

	writeJSON(w, http.StatusOK, AuthResponse{Token: signed})
}
