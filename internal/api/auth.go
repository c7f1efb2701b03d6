package api

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// SessionCookieName carries the signed admin session ID.
	SessionCookieName = "arena_admin_session"

	// SessionDuration is how long an admin login lasts.
	SessionDuration = 12 * time.Hour

	CookieHTTPOnly = true
	CookieSameSite = http.SameSiteStrictMode
)

var (
	// ErrBadToken is returned when a login presents the wrong admin token.
	ErrBadToken = errors.New("invalid admin token")

	errCookieFormat    = errors.New("invalid cookie format")
	errCookieSignature = errors.New("invalid cookie signature")
)

// AdminSession represents an authenticated admin session
type AdminSession struct {
	ID        string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	RemoteIP  string    `json:"remoteIp"`
}

// SessionManager guards match control behind a shared admin token. A
// request is authorized by "Authorization: Bearer <token>" or by a signed
// session cookie obtained from Login.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*AdminSession

	token      string
	hashed     bool // token is a bcrypt hash
	secretKey  []byte
	secureOnly bool

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a session manager for token. An empty token
// disables authentication entirely. A token that is a bcrypt hash is
// compared with bcrypt, so the plain token need not be deployed.
func NewSessionManager(token string) *SessionManager {
	secretKey := make([]byte, 32)
	if _, err := rand.Read(secretKey); err != nil {
		log.Printf("⚠️ Failed to generate session key, deriving from token: %v", err)
		sum := sha256.Sum256([]byte("arena-session:" + token))
		secretKey = sum[:]
	}

	sm := &SessionManager{
		sessions:  make(map[string]*AdminSession),
		token:     token,
		hashed:    isBcryptHash(token),
		secretKey: secretKey,
		stopChan:  make(chan struct{}),
	}

	if sm.Enabled() {
		go sm.cleanupLoop(10 * time.Minute)
	}
	return sm
}

// Enabled reports whether an admin token is configured.
func (sm *SessionManager) Enabled() bool { return sm.token != "" }

// SetSecureCookies marks session cookies Secure (HTTPS only).
func (sm *SessionManager) SetSecureCookies(secure bool) {
	sm.mu.Lock()
	sm.secureOnly = secure
	sm.mu.Unlock()
}

// Stop ends the cleanup goroutine.
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stopChan) })
}

// Login checks token and opens a session.
func (sm *SessionManager) Login(token, remoteIP string) (*AdminSession, error) {
	if !sm.checkToken(token) {
		return nil, ErrBadToken
	}

	now := time.Now()
	session := &AdminSession{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(SessionDuration),
		RemoteIP:  remoteIP,
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	log.Printf("🔐 Admin session opened from %s", remoteIP)
	return session, nil
}

// GetSession retrieves a live session by ID
func (sm *SessionManager) GetSession(sessionID string) *AdminSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists || time.Now().After(session.ExpiresAt) {
		return nil
	}
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()
}

// Authorized reports whether r carries the admin token or a valid session.
func (sm *SessionManager) Authorized(r *http.Request) bool {
	if !sm.Enabled() {
		return true
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		return ok && sm.checkToken(token)
	}
	return sm.ValidateSession(r) != nil
}

// ValidateSession returns the session named by the request cookie.
func (sm *SessionManager) ValidateSession(r *http.Request) *AdminSession {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}
	sessionID, err := sm.decodeCookie(cookie.Value)
	if err != nil {
		return nil
	}
	return sm.GetSession(sessionID)
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, s *AdminSession) {
	sm.mu.RLock()
	secure := sm.secureOnly
	sm.mu.RUnlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sm.encodeCookie(s.ID),
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: CookieHTTPOnly,
		Secure:   secure,
		SameSite: CookieSameSite,
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: CookieHTTPOnly,
		SameSite: CookieSameSite,
	})
}

// encodeCookie creates a signed cookie value: base64(id.hexmac)
func (sm *SessionManager) encodeCookie(sessionID string) string {
	return base64.URLEncoding.EncodeToString([]byte(sessionID + "." + sm.sign(sessionID)))
}

func (sm *SessionManager) decodeCookie(value string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return "", errCookieFormat
	}

	sessionID, sig, ok := strings.Cut(string(decoded), ".")
	if !ok {
		return "", errCookieFormat
	}
	if !hmac.Equal([]byte(sig), []byte(sm.sign(sessionID))) {
		return "", errCookieSignature
	}
	return sessionID, nil
}

func (sm *SessionManager) sign(sessionID string) string {
	mac := hmac.New(sha256.New, sm.secretKey)
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (sm *SessionManager) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-sm.stopChan:
			return
		case <-ticker.C:
			sm.cleanup(time.Now())
		}
	}
}

func (sm *SessionManager) cleanup(now time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, session := range sm.sessions {
		if now.After(session.ExpiresAt) {
			delete(sm.sessions, id)
		}
	}
}

// AdminAuthMiddleware rejects requests that are not Authorized.
func (sm *SessionManager) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sm.Authorized(r) {
			RecordConnectionRejected("unauthorized")
			w.Header().Set("WWW-Authenticate", `Bearer realm="arena"`)
			writeError(w, "Admin authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthStatus is the body of GET /api/admin/status.
type AuthStatus struct {
	Required      bool  `json:"required"`
	Authenticated bool  `json:"authenticated"`
	ExpiresAt     int64 `json:"expiresAt,omitempty"`
}

// HandleLogin exchanges {"token": "..."} for a session cookie.
func (sm *SessionManager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !sm.Enabled() {
		writeJSON(w, AuthStatus{Required: false, Authenticated: true})
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	session, err := sm.Login(req.Token, GetClientIP(r))
	if err != nil {
		log.Printf("⚠️ Admin login rejected from %s", GetClientIP(r))
		RecordConnectionRejected("unauthorized")
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	sm.SetSessionCookie(w, session)
	writeJSON(w, AuthStatus{Required: true, Authenticated: true, ExpiresAt: session.ExpiresAt.Unix()})
}

// HandleAuthStatus returns current auth status
func (sm *SessionManager) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	status := AuthStatus{Required: sm.Enabled(), Authenticated: sm.Authorized(r)}
	if s := sm.ValidateSession(r); s != nil {
		status.ExpiresAt = s.ExpiresAt.Unix()
	}
	writeJSON(w, status)
}

// HandleLogout closes the cookie session, if any.
func (sm *SessionManager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if sessionID, err := sm.decodeCookie(cookie.Value); err == nil {
			sm.DeleteSession(sessionID)
		}
	}
	sm.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (sm *SessionManager) checkToken(token string) bool {
	if token == "" {
		return false
	}
	if sm.hashed {
		return bcrypt.CompareHashAndPassword([]byte(sm.token), []byte(token)) == nil
	}
	return constantTimeEqual(token, sm.token)
}

func isBcryptHash(s string) bool {
	if _, err := bcrypt.Cost([]byte(s)); err != nil {
		return false
	}
	return true
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

