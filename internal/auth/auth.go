// Package auth is the authentication adapter sitting in front of the core.
//
// It owns everything the core deliberately does not: credential storage
// (bcrypt password hashes), HMAC-signed JWTs, and the role hierarchy the
// HTTP layer enforces. The core itself only ever sees an authenticated
// Principal.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/arontabacinik/itirp/pkg/types"
)

var (
	// ErrInvalidCredentials covers both unknown users and wrong passwords,
	// so responses do not reveal which usernames exist.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken covers expired, malformed, or mis-signed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// ————————————————————————————————————————————————————————————————————————
// Credential store
// ————————————————————————————————————————————————————————————————————————

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("itirp-timing-equalizer"), bcrypt.DefaultCost)

type user struct {
	id           string
	passwordHash []byte
	role         types.Role
}

// CredentialStore holds users with bcrypt password hashes.
type CredentialStore struct {
	mu    sync.RWMutex
	users map[string]user // keyed by username
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{users: make(map[string]user)}
}

// AddUser registers a user. The password is hashed with bcrypt before
// storage; the plaintext is never retained.
func (s *CredentialStore) AddUser(username, password string, role types.Role) error {
	if username == "" {
		return fmt.Errorf("auth: username must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return fmt.Errorf("auth: user %q already exists", username)
	}
	s.users[username] = user{
		id:           uuid.NewString(),
		passwordHash: hash,
		role:         role,
	}
	return nil
}

// Authenticate verifies the password and returns the principal.
func (s *CredentialStore) Authenticate(username, password string) (types.Principal, error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		// Burn a comparison anyway so unknown users cost the same as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return types.Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return types.Principal{}, ErrInvalidCredentials
	}
	return types.Principal{UserID: u.id, Role: u.role}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Token service
// ————————————————————————————————————————————————————————————————————————

// Claims is the JWT payload carried by issued tokens.
type Claims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 JWTs.
type TokenService struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock injects the time source.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret, issuer string, expiry time.Duration, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for the principal.
func (s *TokenService) Issue(principal types.Principal) (string, error) {
	now := s.now()
	claims := Claims{
		Role: principal.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token and returns its principal.
func (s *TokenService) Verify(tokenString string) (types.Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return types.Principal{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return types.Principal{}, ErrInvalidToken
	}
	return types.Principal{UserID: claims.Subject, Role: claims.Role}, nil
}
