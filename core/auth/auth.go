package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength 管理员密码最短长度
const MinPasswordLength = 8

// PasswordCost is the bcrypt cost for new hashes.
var PasswordCost = bcrypt.DefaultCost

// bcrypt only reads the first 72 bytes.
const maxPasswordBytes = 72

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
	ErrPasswordMismatch = errors.New("password does not match")
	ErrMalformedHash    = errors.New("stored password hash is malformed")
)

// HashPassword 校验密码长度并生成 bcrypt 哈希
func HashPassword(password string) (string, error) {
	switch {
	case len([]rune(password)) < MinPasswordLength:
		return "", ErrPasswordTooShort
	case len(password) > maxPasswordBytes:
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword returns nil when password matches hash,
// ErrPasswordMismatch when it does not and ErrMalformedHash when hash is
// not a bcrypt hash.
func VerifyPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}
