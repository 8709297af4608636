package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// LoginConfig carries the bcrypt password hashes checked at login time.
// AdminHash is required; GuestHash is optional (guest login disabled
// when empty), mirroring backend/infrastructure/auth.py's
// validate_password_with_role.
type LoginConfig struct {
	AdminHash []byte
	GuestHash []byte // nil disables guest login
}

// LoginHandler serves the unauthenticated /auth/login and /auth/health
// endpoints (§6).
type LoginHandler struct {
	cfg    LoginConfig
	issuer *TokenIssuer
}

func NewLoginHandler(cfg LoginConfig, issuer *TokenIssuer) *LoginHandler {
	return &LoginHandler{cfg: cfg, issuer: issuer}
}

func (h *LoginHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("GET /auth/health", h.handleHealth)
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func (h *LoginHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password required"})
		return
	}

	role, ok := h.validate(req.Password)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid password"})
		return
	}

	userID := "admin"
	if role == "guest" {
		suffix, err := randomHex(6)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		userID = "guest-" + suffix
	}

	token, err := h.issuer.Issue(userID, role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Role: role})
}

func (h *LoginHandler) validate(password string) (string, bool) {
	if bcrypt.CompareHashAndPassword(h.cfg.AdminHash, []byte(password)) == nil {
		return "admin", true
	}
	if h.cfg.GuestHash != nil && bcrypt.CompareHashAndPassword(h.cfg.GuestHash, []byte(password)) == nil {
		return "guest", true
	}
	return "", false
}

func (h *LoginHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
