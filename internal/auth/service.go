package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"genbanote/api/internal/store"
)

const usersCollection = "users"

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// UserStore is the slice of the document store the auth service needs.
type UserStore interface {
	Query(ctx context.Context, q store.Query) ([]store.Doc, error)
	Create(ctx context.Context, collection string, data map[string]any, actor string) (store.Doc, error)
}

// Session is an issued bearer token with its identity.
type Session struct {
	Token     string
	UserID    string
	Name      string
	ExpiresAt time.Time
}

// Service manages accounts and sessions.
type Service struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
}

func NewService(users UserStore, secret []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{users: users, secret: secret, ttl: ttl}
}

// SignUp registers an account and signs it in.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return Session{}, fmt.Errorf("auth: name and email are required")
	}
	if len(password) < 8 {
		return Session{}, fmt.Errorf("auth: password must be at least 8 characters")
	}

	existing, err := s.users.Query(ctx, store.Query{
		Collection: usersCollection,
		Filters:    []store.Filter{{Field: "email", Op: store.OpEqual, Value: email}},
		Limit:      1,
	})
	if err != nil {
		return Session{}, fmt.Errorf("auth: check email: %w", err)
	}
	if len(existing) > 0 {
		return Session{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("auth: hash password: %w", err)
	}
	doc, err := s.users.Create(ctx, usersCollection, map[string]any{
		"name":         name,
		"email":        email,
		"passwordHash": string(hash),
	}, "")
	if err != nil {
		return Session{}, fmt.Errorf("auth: create user: %w", err)
	}
	return s.issue(doc.ID, name)
}

// SignIn verifies credentials and issues a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	docs, err := s.users.Query(ctx, store.Query{
		Collection: usersCollection,
		Filters:    []store.Filter{{Field: "email", Op: store.OpEqual, Value: email}},
		Limit:      1,
	})
	if err != nil {
		return Session{}, fmt.Errorf("auth: lookup user: %w", err)
	}
	if len(docs) == 0 {
		return Session{}, ErrInvalidCredentials
	}
	hash, _ := docs[0].Data["passwordHash"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	name, _ := docs[0].Data["name"].(string)
	return s.issue(docs[0].ID, name)
}

// Verify parses a bearer token back into claims.
func (s *Service) Verify(token string) (Claims, error) {
	return ParseToken(s.secret, token)
}

func (s *Service) issue(userID, name string) (Session, error) {
	expiresAt := time.Now().Add(s.ttl)
	token, err := IssueToken(s.secret, Claims{Sub: userID, Name: name, Exp: expiresAt.Unix()})
	if err != nil {
		return Session{}, fmt.Errorf("auth: issue token: %w", err)
	}
	return Session{Token: token, UserID: userID, Name: name, ExpiresAt: expiresAt}, nil
}
