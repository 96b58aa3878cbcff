// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested account does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert collides with an existing
// username or email. This is the storage-level backstop for the gap between
// the availability pre-check and the insert.
var ErrDuplicate = errors.New("duplicate key")
