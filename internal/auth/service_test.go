package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"genbanote/api/internal/store"
)

type fakeUsers struct {
	docs []store.Doc
}

func (f *fakeUsers) Query(_ context.Context, q store.Query) ([]store.Doc, error) {
	out := []store.Doc{}
	for _, doc := range f.docs {
		match := true
		for _, filter := range q.Filters {
			if filter.Op == store.OpEqual && doc.Data[filter.Field] != filter.Value {
				match = false
			}
		}
		if match {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeUsers) Create(_ context.Context, collection string, data map[string]any, _ string) (store.Doc, error) {
	doc := store.Doc{Collection: collection, ID: uuid.NewString(), Data: data}
	f.docs = append(f.docs, doc)
	return doc, nil
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := NewService(&fakeUsers{}, []byte("test-secret"), time.Hour)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "棟梁", "boss@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if session.Token == "" || session.UserID == "" {
		t.Fatalf("incomplete session: %+v", session)
	}

	claims, err := svc.Verify(session.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Sub != session.UserID || claims.Name != "棟梁" {
		t.Fatalf("claims = %+v", claims)
	}

	again, err := svc.SignIn(ctx, "BOSS@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if again.UserID != session.UserID {
		t.Fatal("sign-in must resolve the same account")
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(&fakeUsers{}, []byte("test-secret"), time.Hour)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "A", "dup@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SignUp(ctx, "B", "dup@example.com", "password123"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	svc := NewService(&fakeUsers{}, []byte("test-secret"), time.Hour)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "A", "a@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SignIn(ctx, "a@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestTokenRoundTripAndTampering(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, Claims{Sub: "u1", Name: "棟梁", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(secret, token); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken([]byte("other-secret"), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := ParseToken(secret, token+"x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, Claims{Sub: "u1", Name: "棟梁", Exp: time.Now().Add(-time.Minute).Unix()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}
