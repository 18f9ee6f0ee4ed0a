// Package service holds the business rules of bookworm.
//
//	Handler (HTTP)  → parses requests, writes envelopes
//	Service         → validates, enforces rules, orchestrates
//	Repository      → reads and writes the database
//
// Services accept plain Go values, return domain errors from apperror and
// never see an *http.Request. Dependencies are interfaces injected through
// the New* constructors so tests can pass in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/bookworm/internal/apperror"
	"github.com/sakif/bookworm/internal/auth"
	"github.com/sakif/bookworm/internal/model"
	"github.com/sakif/bookworm/internal/repository"
)

// bcrypt only looks at the first 72 bytes.
const maxPasswordBytes = 72

const invalidCredentials = "Invalid credentials"

// AuthService registers users, checks credentials and issues tokens.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and a freshly issued JWT.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is the body of POST /api/auth/register. Field order is the
// order in which rules are reported.
type RegisterInput struct {
	Password string `json:"password" validate:"min=6"`
	Username string `json:"username" validate:"min=3,max=30"`
	Email    string `json:"email" validate:"email"`
}

var registerMessages = messages{
	"password.min": "Password should be at least 6 characters long",
	"username.min": "Username should be at least 3 characters long",
	"username.max": "Username should be at most 30 characters long",
}

// Register creates an email/password account with a generated avatar.
// Email uniqueness is checked before username uniqueness.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, apperror.ValidationFailed("", "All fields are required")
	}
	if err := validateStruct(in, registerMessages); err != nil {
		return nil, err
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password should be at most %d bytes long", maxPasswordBytes))
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperror.AlreadyExists("email", "Email")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	taken, err := s.users.FindConflict(ctx, "", in.Username, "")
	if err != nil {
		return nil, fmt.Errorf("service/auth: checking username: %w", err)
	}
	if taken != nil {
		return nil, apperror.AlreadyExists("username", "Username")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		ProfileImage: model.DefaultProfileImage(in.Username),
	}
	// The store's UNIQUE indexes catch a concurrent registration.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, wrapUnlessDomain(err, "service/auth: creating user")
	}

	s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("username", user.Username))
	return s.issue(user)
}

// Login checks email and password. Unknown emails and wrong passwords give
// the same error so callers cannot probe for accounts.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("", "All fields are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("", invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.ValidationFailed("", invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	return s.issue(user)
}

// PasswordChange is the body of PATCH /api/users/updateMyPassword.
type PasswordChange struct {
	Current string `json:"passwordCurrent"`
	New     string `json:"password"`
	Confirm string `json:"passwordConfirm"`
}

// UpdatePassword replaces the password after checking the current one and
// returns a new token.
func (s *AuthService) UpdatePassword(ctx context.Context, userID string, in PasswordChange) (*AuthResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, wrapUnlessDomain(err, "service/auth: loading user")
	}

	switch {
	case in.Current == "" || in.New == "" || in.Confirm == "":
		return nil, apperror.ValidationFailed("", "All password fields are required.")
	case len(in.New) < auth.MinPasswordLength:
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password should be at least %d characters long.", auth.MinPasswordLength))
	case len(in.New) > maxPasswordBytes:
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password should be at most %d bytes long.", maxPasswordBytes))
	case in.New != in.Confirm:
		return nil, apperror.ValidationFailed("passwordConfirm", "Password and password confirmation do not match.")
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Current); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized("Current password is incorrect.")
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	hash, err := s.passwords.Hash(in.New)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, wrapUnlessDomain(err, "service/auth: storing password")
	}
	user.PasswordHash = hash

	s.logger.Info("password changed", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub resolves a GitHub profile to a user:
//
//  1. an account already linked to the GitHub ID,
//  2. else an account with the same email, which gets linked,
//  3. else a new account with a random password and the GitHub avatar.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	if err == nil {
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up github user %d: %w", gh.ID, err)
	}

	email := strings.ToLower(strings.TrimSpace(gh.Email))
	if email != "" {
		user, err = s.users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			if err := s.users.LinkGitHub(ctx, user.ID, gh.ID); err != nil {
				return nil, wrapUnlessDomain(err, "service/auth: linking github account")
			}
			user.GitHubID = gh.ID
			s.logger.Info("github account linked", slog.String("userID", user.ID), slog.Int64("githubID", gh.ID))
			return s.issue(user)
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, fmt.Errorf("service/auth: looking up email: %w", err)
		}
	} else {
		email = strconv.FormatInt(gh.ID, 10) + "+" + strings.ToLower(gh.Login) + "@users.noreply.github.com"
	}

	username, err := s.freeUsername(ctx, gh)
	if err != nil {
		return nil, err
	}

	secret, err := s.passwords.Random()
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	hash, err := s.passwords.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	avatar := gh.AvatarURL
	if avatar == "" {
		avatar = model.DefaultProfileImage(username)
	}
	user = &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		ProfileImage: avatar,
		GitHubID:     gh.ID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, wrapUnlessDomain(err, "service/auth: creating github user")
	}

	s.logger.Info("user registered via GitHub", slog.String("userID", user.ID), slog.String("username", user.Username))
	return s.issue(user)
}

// freeUsername prefers the GitHub login and falls back to login-<githubID>.
func (s *AuthService) freeUsername(ctx context.Context, gh *auth.GitHubUser) (string, error) {
	for _, candidate := range []string{gh.Login, gh.Login + "-" + strconv.FormatInt(gh.ID, 10)} {
		if len(candidate) < 3 {
			continue
		}
		taken, err := s.users.FindConflict(ctx, "", candidate, "")
		if err != nil {
			return "", fmt.Errorf("service/auth: checking username: %w", err)
		}
		if taken == nil {
			return candidate, nil
		}
	}
	return "", apperror.AlreadyExists("username", "Username")
}

// GetUserByID is used by the profile endpoint.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, wrapUnlessDomain(err, "service/auth: fetching user")
	}
	return user, nil
}

// ValidateToken returns the user ID carried by a valid JWT.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// wrapUnlessDomain keeps *apperror.AppError values as they are so handlers
// can map them, and adds context to anything else.
func wrapUnlessDomain(err error, msg string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
