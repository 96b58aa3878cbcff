// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

// Package auth implements the account authentication engine for Emberfall.
//
// # Components
//
//   - Validators (ValidateUsername, ValidatePassword, ValidateEmail,
//     ValidatePhone) - pure field checks, no I/O
//   - AccountRepository - persistence gateway for accounts and uniqueness
//     lookups
//   - PasswordHasher - one-way hashing and verification (BcryptHasher)
//   - Engine - orchestrates validators, repository, and hasher to decide
//     accept/reject for register and login requests
//   - Session / SessionManager - per-connection authentication state
//
// The Engine is the single writer of Session state. Other subsystems read
// sessions through SessionManager.Get, which returns defensive copies, to
// gate world-entry behavior on Session.LoggedIn.
//
// Errors returned by the Engine carry oops codes (AUTH_*) that transport
// adapters map to user-facing messages. Exactly one outcome is produced per
// request: a nil error means success, a coded error means rejection.
package auth
