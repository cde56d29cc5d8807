// Package session tracks which operator is using the device. Credentials are
// checked offline against local bcrypt hashes; when the remote is reachable
// the login also fetches a token for the gateway.
package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/models"
)

// DefaultPassword is the placeholder password of the seeded operators.
const DefaultPassword = "1234"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotLoggedIn        = errors.New("no operator logged in")
	// ErrLoginRequired means the password of the current operator is not
	// known to this process, typically after a restart.
	ErrLoginRequired = errors.New("operator must log in again")
)

var placeholders = []models.User{
	{ID: "1", Name: "Lucas", Avatar: "L"},
	{ID: "2", Name: "Yanel", Avatar: "Y"},
	{ID: "3", Name: "Juan", Avatar: "J"},
}

// PlaceholderUsers returns the built-in operators with password hashed.
func PlaceholderUsers(password string, cost int) ([]models.User, error) {
	users := make([]models.User, 0, len(placeholders))
	for _, u := range placeholders {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = string(hash)
		users = append(users, u)
	}
	return users, nil
}

// Authenticator obtains and forgets remote tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, userID, password string) error
	ClearToken()
}

type Session struct {
	cache *cache.Cache
	users map[string]models.User
	auth  Authenticator

	// The password of the last login stays in memory only, so an expired
	// remote token can be renewed without asking the operator.
	mu       sync.Mutex
	secretOf string
	secret   string
}

func New(c *cache.Cache, users []models.User, auth Authenticator) *Session {
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return &Session{cache: c, users: byID, auth: auth}
}

// Users lists the operators that can log in.
func (s *Session) Users() []models.User {
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Login checks the password locally and remembers the operator. Failing to
// reach the remote does not fail the login.
func (s *Session) Login(ctx context.Context, userID, password string) (*models.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	cache.Write(s.cache, cache.KeyCurrentUser, user.ID)
	s.mu.Lock()
	s.secretOf, s.secret = user.ID, password
	s.mu.Unlock()
	if s.auth != nil {
		if err := s.auth.Authenticate(ctx, userID, password); err != nil {
			log.Printf("⚠️ [SESSION] %s logged in offline: %v", user.Name, err)
		}
	}
	log.Printf("👤 [SESSION] %s logged in", user.Name)
	return &user, nil
}

func (s *Session) Logout() {
	cache.Write(s.cache, cache.KeyCurrentUser, "")
	s.mu.Lock()
	s.secretOf, s.secret = "", ""
	s.mu.Unlock()
	if s.auth != nil {
		s.auth.ClearToken()
	}
}

// CurrentUser returns the logged in operator, surviving restarts through the cache.
func (s *Session) CurrentUser() (*models.User, error) {
	id := cache.Read(s.cache, cache.KeyCurrentUser, "")
	user, ok := s.users[id]
	if id == "" || !ok {
		return nil, ErrNotLoggedIn
	}
	return &user, nil
}

// Reauthenticate asks the remote for a new token on behalf of the current
// operator. The gateway calls it when the remote refuses the token.
func (s *Session) Reauthenticate(ctx context.Context) error {
	user, err := s.CurrentUser()
	if err != nil {
		return err
	}
	s.mu.Lock()
	owner, secret := s.secretOf, s.secret
	s.mu.Unlock()
	if s.auth == nil || owner != user.ID || secret == "" {
		return ErrLoginRequired
	}
	return s.auth.Authenticate(ctx, user.ID, secret)
}
