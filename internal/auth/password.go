package auth

// BCRYPT:
// every hash is salted, so identical passwords produce different hashes.
// The cost factor is configurable; tests use the minimum (4).

import (
	"errors"
	"fmt"

	"github.com/sethvargo/go-password/password"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration and on
// password change.
const MinPasswordLength = 6

// maxPasswordBytes is bcrypt's input limit; longer input is silently truncated
// by the algorithm, so we reject it instead.
const maxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService provides bcrypt hashing and verification.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the given bcrypt cost.
func NewPasswordService(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// NewPasswordServiceForTest returns a PasswordService with bcrypt's minimum
// cost. Do NOT use in production.
func NewPasswordServiceForTest() *PasswordService {
	return &PasswordService{cost: bcrypt.MinCost}
}

// Hash hashes plaintext with bcrypt. The result embeds salt and cost.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", maxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil if plaintext matches hash, ErrPasswordMismatch if it
// doesn't, or another error if the hash itself is malformed.
// bcrypt compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// Random generates a strong password for accounts that never log in with one
// (GitHub sign-ins). The user can set a real one through the password-change
// route after logging in.
func (p *PasswordService) Random() (string, error) {
	// 32 chars, 6 digits, 4 symbols, mixed case, repeats allowed.
	pw, err := password.Generate(32, 6, 4, false, true)
	if err != nil {
		return "", fmt.Errorf("auth: generating password: %w", err)
	}
	return pw, nil
}
