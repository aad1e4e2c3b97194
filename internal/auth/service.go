package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/alexedwards/argon2id"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 64
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrPasswordTooLong    = fmt.Errorf("password must be at most %d characters", maxPasswordLength)
)

// Service implements editor login.
type Service struct {
	store     EditorStore
	jwtSecret string
	params    *argon2id.Params
}

// NewService creates a Service signing tokens with jwtSecret.
func NewService(store EditorStore, jwtSecret string) *Service {
	return &Service{
		store:     store,
		jwtSecret: jwtSecret,
		params:    argon2id.DefaultParams,
	}
}

// EnsureEditor creates the initial editor unless one with that email exists.
func (s *Service) EnsureEditor(ctx context.Context, email, password string) error {
	if err := validatePassword(password); err != nil {
		return fmt.Errorf("initial editor password: %w", err)
	}
	hash, err := argon2id.CreateHash(password, s.params)
	if err != nil {
		return fmt.Errorf("hashing initial editor password: %w", err)
	}
	editor, err := s.store.CreateEditor(ctx, email, hash)
	if err != nil {
		return fmt.Errorf("creating initial editor: %w", err)
	}
	slog.Info("initial editor ensured", "email", editor.Email, "id", editor.ID)
	return nil
}

// Login checks the credentials and returns the editor and a signed access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Editor, string, error) {
	editor, err := s.store.EditorByEmail(ctx, email)
	if errors.Is(err, ErrEditorNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("looking up editor: %w", err)
	}

	match, err := argon2id.ComparePasswordAndHash(password, editor.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("verifying password: %w", err)
	}
	if !match {
		return nil, "", ErrInvalidCredentials
	}

	token, err := CreateAccessToken(editor.ID, editor.Email, s.jwtSecret)
	if err != nil {
		return nil, "", err
	}
	return editor, token, nil
}

// Editor returns the editor with the given ID.
func (s *Service) Editor(ctx context.Context, id string) (*Editor, error) {
	return s.store.EditorByID(ctx, id)
}

// validatePassword enforces the length policy in runes, not bytes.
func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < minPasswordLength:
		return ErrPasswordTooShort
	case n > maxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}
