package fakebackend

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mobile-session/internal/domain"
)

type loginRequest struct {
	Method   string `json:"method"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
	DOB       string `json:"dob"`
	Gender    string `json:"gender"`
}

type callbackRequest struct {
	AccessToken string `json:"accessToken"`
	IDToken     string `json:"idToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// userPayload mirrors the backend's user document
type userPayload struct {
	ID           string `json:"_id"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

func toPayload(u domain.User) userPayload {
	return userPayload{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ProfileImage: u.ProfileImage,
		Phone:        u.Phone,
	}
}

type sessionData struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *userPayload `json:"user,omitempty"`
}

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "fakebackend",
	})
}

func (s *Server) loginEmail(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Method != "email" {
		writeError(w, http.StatusBadRequest, "Unsupported login method")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || acct.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	s.writeSession(w, http.StatusOK, acct.user)
}

func (s *Server) signupEmail(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.DOB == "" || req.Gender == "" {
		writeError(w, http.StatusBadRequest, "email, password, dob and gender are required")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[strings.ToLower(req.Email)]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "An account with this email already exists")
		return
	}
	user := s.addAccountLocked(req.Email, req.Password, req.FirstName, req.LastName)
	s.mu.Unlock()

	s.logger.WithField("user_id", user.ID).Info("Account created")
	s.writeSession(w, http.StatusCreated, user)
}

// identityCallback trusts the id token's email claim; the real backend verifies it with the tenant
func (s *Server) identityCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" || req.IDToken == "" {
		writeError(w, http.StatusBadRequest, "accessToken and idToken are required")
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(req.IDToken, claims); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid id token")
		return
	}
	email, _ := claims["email"].(string)
	if email == "" {
		writeError(w, http.StatusUnauthorized, "id token has no email")
		return
	}
	given, _ := claims["given_name"].(string)
	family, _ := claims["family_name"].(string)

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(email)]
	var user domain.User
	if ok {
		user = acct.user
	} else {
		user = s.addAccountLocked(email, "", given, family)
	}
	s.mu.Unlock()

	s.writeSession(w, http.StatusOK, user)
}

func (s *Server) primaryRefreshGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.primaryDown
		s.mu.Unlock()
		if down {
			writeError(w, http.StatusServiceUnavailable, "Service unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	s.mu.Lock()
	userID, ok := s.refreshTokens[req.RefreshToken]
	if ok {
		delete(s.refreshTokens, req.RefreshToken)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	access, refresh, err := s.issue(userID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to issue tokens")
		writeError(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    sessionData{AccessToken: access, RefreshToken: refresh},
	})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	forced := s.profileStatus
	s.mu.Unlock()
	if forced != 0 {
		writeError(w, forced, http.StatusText(forced))
		return
	}

	userID, _ := r.Context().Value(UserIDContextKey).(string)
	user, ok := s.userByID(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	p := toPayload(user)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: p})
}

func (s *Server) writeSession(w http.ResponseWriter, status int, user domain.User) {
	access, refresh, err := s.issue(user.ID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to issue tokens")
		writeError(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}
	p := toPayload(user)
	writeJSON(w, status, envelope{
		Success: true,
		Data:    sessionData{AccessToken: access, RefreshToken: refresh, User: &p},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}
