package people

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "kindergarten/pkg/domain-errors"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 8

// hashPassword bcrypt-hashes password for storage.
func hashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "password is too long")
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

// verifyPassword checks password against a stored bcrypt hash.
func verifyPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errInvalidCredentials
		}
		return fmt.Errorf("could not verify password: %w", err)
	}
	return nil
}

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
