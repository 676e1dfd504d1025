package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)

	ctx := context.Background()
	user, err := svc.Register(ctx, Registration{Email: " Ada@Example.com ", Password: "correct horse", FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalised email, got %s", user.Email)
	}
	if string(user.PasswordHash) == "correct horse" {
		t.Fatalf("password stored in clear")
	}

	authed, err := svc.Authenticate(ctx, Credentials{Email: "ADA@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, authed.ID)
	}
	if authed.LastLogin == nil {
		t.Fatalf("expected last login to be recorded")
	}

	stored, err := svc.Get(ctx, user.ID)
	if err != nil || stored.LastLogin == nil {
		t.Fatalf("expected persisted last login, got %v (%v)", stored.LastLogin, err)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Email: "bob@example.com", Password: "hunter22"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Email: "bob@example.com", Password: "hunter23"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Email: "nobody@example.com", Password: "hunter22"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Email: "not-an-email", Password: "longenough"}); err == nil {
		t.Fatalf("expected invalid email error")
	}
	if _, err := svc.Register(ctx, Registration{Email: "c@example.com", Password: "short"}); err == nil {
		t.Fatalf("expected short password error")
	}
	if _, err := svc.Register(ctx, Registration{Email: "c@example.com", Password: "longenough"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Email: "c@example.com", Password: "longenough"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestRegisterValidationErrorsAreInvalidInput(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Email: "nope", Password: "longenough"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for bad email, got %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Email: "d@example.com", Password: "short"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for short password, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{Email: "eve@example.com", Password: "old password"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong password", "new password"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected wrong password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "old password", "old password"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected unchanged password rejection, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "old password", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected short password rejection, got %v", err)
	}
	if err := svc.ChangePassword(ctx, "missing", "old password", "new password"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "old password", "new password"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	stored, err := svc.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.TokenVersion != user.TokenVersion+1 {
		t.Fatalf("expected token version %d, got %d", user.TokenVersion+1, stored.TokenVersion)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Email: "eve@example.com", Password: "old password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Email: "eve@example.com", Password: "new password"}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}
