// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists indicates a create that collided with an existing row,
// typically two workers racing on the same natural key.
var ErrAlreadyExists = errors.New("already exists")

// ErrValidation indicates a request that failed domain validation.
var ErrValidation = errors.New("validation failed")

// ErrInvalidCredentials indicates stored provider credentials that decrypted
// fine but were rejected by the provider.
var ErrInvalidCredentials = errors.New("provider rejected credentials")

// ErrUnsupportedProvider indicates an account whose provider has no registered adapter.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ErrDecryptionFailure indicates a credential blob that could not be decrypted.
var ErrDecryptionFailure = errors.New("credential decryption failed")

// ErrProviderUnavailable indicates a transient upstream billing API failure.
// Operations wrapping it are safe to retry.
var ErrProviderUnavailable = errors.New("provider unavailable")

// ErrStoreUnavailable indicates the persistence layer itself is unreachable.
// This is the only error class that propagates out of a work unit.
var ErrStoreUnavailable = errors.New("store unavailable")
