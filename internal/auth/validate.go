// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 6

var (
	// usernameRegex matches usernames made of English letters only.
	usernameRegex = regexp.MustCompile(`^[A-Za-z]+$`)

	// emailRegex matches a simple local@domain.tld shape: no whitespace,
	// a single @, and at least one dot after it.
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// phoneRegex matches international numbers: + followed by 10-15 digits.
	phoneRegex = regexp.MustCompile(`^\+\d{10,15}$`)
)

// ValidateUsername validates a username against rules.
// Username requirements:
//   - Length: MinUsernameLength to MaxUsernameLength characters
//   - English letters (a-z, A-Z) only
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	// Lengths count runes, not bytes, so multibyte input is measured the
	// way a player perceives it.
	if n := utf8.RuneCountInString(username); n < MinUsernameLength || n > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			With("max", MaxUsernameLength).
			Errorf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username may contain only English letters")
	}
	return nil
}

// ValidatePassword validates a password against rules.
// Password requirements:
//   - Length: at least MinPasswordLength characters
//   - At least one uppercase letter
func ValidatePassword(password string) error {
	if password == "" {
		return oops.Code("AUTH_INVALID_PASSWORD").Errorf("password cannot be empty")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength || !strings.ContainsFunc(password, isUpper) {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters and contain an uppercase letter", MinPasswordLength)
	}
	return nil
}

func isUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

// ValidateEmail validates an email address shape.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("enter a valid email address")
	}
	return nil
}

// ValidatePhone validates a phone number in international format.
func ValidatePhone(phone string) error {
	if phone == "" {
		return oops.Code("AUTH_INVALID_PHONE").Errorf("phone cannot be empty")
	}
	if !phoneRegex.MatchString(phone) {
		return oops.Code("AUTH_INVALID_PHONE").
			Errorf("phone must be in international format, e.g. +48123456789")
	}
	return nil
}
