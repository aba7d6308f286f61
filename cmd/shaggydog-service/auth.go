package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func verifyPassword(password, passwordHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) == nil
}

func (st *appState) createSession(r *http.Request, userID int64) (string, error) {
	token := uuid.NewString()
	err := st.redis.Set(r.Context(), sessionPrefix+token, strconv.FormatInt(userID, 10), st.cfg.sessionTTL).Err()
	if err != nil {
		return "", err
	}
	return token, nil
}

func (st *appState) userFromRequest(r *http.Request) (*User, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, errors.New("no session")
	}
	raw, err := st.redis.Get(r.Context(), sessionPrefix+cookie.Value).Result()
	if err != nil || raw == "" {
		return nil, errors.New("session expired")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid session record")
	}
	return st.store.GetUserByID(userID)
}

func (st *appState) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   st.cfg.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// parseCredentials accepts both JSON bodies and classic form posts.
func parseCredentials(r *http.Request) (username, password string) {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			return strings.TrimSpace(body.Username), body.Password
		}
		return "", ""
	}
	if err := r.ParseForm(); err != nil {
		return "", ""
	}
	return strings.TrimSpace(r.PostFormValue("username")), r.PostFormValue("password")
}

func (st *appState) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	username, password := parseCredentials(r)
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	if len(password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	hash, err := hashPassword(password)
	if err != nil {
		logger.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	userID, err := st.store.CreateUser(username, hash)
	if err != nil {
		if errors.Is(err, errUserExists) {
			writeError(w, http.StatusConflict, "Username already exists")
			return
		}
		logger.Error("failed to create user", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	logger.Info("user registered", "user_id", userID, "username", username)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Registration successful! Please log in.",
	})
}

func (st *appState) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	username, password := parseCredentials(r)
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	u, err := st.store.GetUserByUsername(username)
	if err != nil || !verifyPassword(password, u.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := st.createSession(r, u.ID)
	if err != nil {
		logger.Error("failed to create session", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	st.setSessionCookie(w, token, int(st.cfg.sessionTTL.Seconds()))
	st.pushFlash(r.Context(), token, "success", "Welcome back, "+u.Username+"!")

	logger.Info("user logged in", "user_id", u.ID, "username", u.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    map[string]any{"id": u.ID, "username": u.Username},
	})
}

func (st *appState) handleLogout(w http.ResponseWriter, r *http.Request, u *User) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		st.redis.Del(r.Context(), sessionPrefix+cookie.Value, flashPrefix+cookie.Value)
	}
	st.setSessionCookie(w, "", -1)

	logger.Info("user logged out", "user_id", u.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "You have been logged out",
	})
}

func (st *appState) handleMe(w http.ResponseWriter, r *http.Request, u *User) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         u.ID,
		"username":   u.Username,
		"created_at": u.CreatedAt,
	})
}
