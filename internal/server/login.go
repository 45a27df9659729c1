package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/doorward/broker/internal/auth"
	brokerErrors "github.com/doorward/broker/internal/errors"
	"github.com/doorward/broker/internal/storage"
)

// SessionCookieName is the cookie that carries the client-role session
// token issued by /login.
const SessionCookieName = "session_id"

// LoginResponse is the JSON response from the /login endpoint on success.
type LoginResponse struct {
	// Username echoes the authenticated identity.
	Username string `json:"username"`
}

// ErrorResponse is the JSON response for error conditions.
type ErrorResponse struct {
	// Error is a short machine-readable label (e.g., "invalid_credentials").
	Error string `json:"error"`

	// ErrorCode is the stable dotted taxonomy code (e.g., "auth.invalid").
	ErrorCode string `json:"error_code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// handleLogin handles POST /login requests. It accepts form fields
// username and password, and on success sets the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", brokerErrors.CodeProtocolBadField, "Only POST is allowed")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", brokerErrors.CodeProtocolMissingField, "Malformed form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials", brokerErrors.CodeAuthRequired, "Username and password are required")
		return
	}

	token, err := s.config.Sessions.Login(username, password)
	if err != nil {
		switch err {
		case auth.ErrRateLimited:
			s.recordAudit(storage.EventLoginFailed, "", "rate limited: "+username)
			writeError(w, http.StatusTooManyRequests, "rate_limited", brokerErrors.CodeSessionRateLimited, "Too many login attempts, please wait")
		case auth.ErrInvalidCredentials:
			s.recordAudit(storage.EventLoginFailed, "", "invalid credentials: "+username)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", brokerErrors.CodeAuthInvalid, "Invalid username or password")
		default:
			log.Printf("server: unexpected error during login: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", brokerErrors.CodeInternal, "Failed to complete login")
		}
		return
	}

	s.recordAudit(storage.EventLogin, "", username)
	log.Printf("server: session issued for %s", username)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.config.Sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LoginResponse{Username: username})
}

// writeError sends a JSON error response with a taxonomy code.
func writeError(w http.ResponseWriter, status int, label, taxonomyCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     label,
		ErrorCode: taxonomyCode,
		Message:   message,
	})
}
