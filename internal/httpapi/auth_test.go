package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"invoicedesk/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if user.ID == "" {
		user.ID = "usr_stub_" + user.Username
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"alice": {
				ID:        "usr_alice",
				Username:  "alice",
				Password:  "alice-pass",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "alice",
		Password: "alice-pass",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "alice-pass" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateUserStoresPasswordHashAndIssuesToken(t *testing.T) {
	store := &userStoreStub{}
	manager := NewAuthManager("test-secret", time.Hour, store)

	user, err := manager.CreateUser(context.Background(), "Billing", "pass1234")
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Username != "billing" || user.ID != "usr_stub_billing" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.Password != "" {
		t.Fatalf("password hash must not be returned")
	}
	if store.users["billing"].Password == "pass1234" {
		t.Fatalf("expected stored password to be hashed")
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "billing", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login with new user failed: %v", err)
	}
	if resp.UserID != "usr_stub_billing" {
		t.Fatalf("expected user id in login response, got %q", resp.UserID)
	}

	identity, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if identity.UID != "usr_stub_billing" || identity.Username != "billing" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestCreateUserRejectsWeakInput(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	cases := []struct {
		username string
		password string
	}{
		{"ab", "pass1234"},
		{"has space", "pass1234"},
		{"carol", "short"},
	}
	for _, tc := range cases {
		if _, err := manager.CreateUser(context.Background(), tc.username, tc.password); err == nil {
			t.Fatalf("expected %q/%q to be rejected", tc.username, tc.password)
		}
	}

	if _, err := manager.CreateUser(context.Background(), "carol", "pass1234"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := manager.CreateUser(context.Background(), "carol", "pass5678"); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	hash, err := hashPassword("dormant-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := &userStoreStub{users: map[string]domain.UserAccount{
		"dormant": {ID: "usr_dormant", Username: "dormant", Password: hash, Active: false},
	}}
	manager := NewAuthManager("test-secret", time.Hour, store)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "dormant", Password: "dormant-pass"})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "dormant", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, nil)
	verifier := NewAuthManager("secret-two", time.Hour, nil)

	if _, err := issuer.CreateUser(context.Background(), "dave", "pass1234"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "dave", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
