package vault

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials  = errors.New("vault: invalid credentials")
	ErrInvalidFormat       = errors.New("vault: not a vault file")
	ErrDecryptionFailed    = errors.New("vault: decryption failed")
	ErrMergeConflict       = errors.New("vault: merge conflict")
	ErrStorage             = errors.New("vault: storage error")
	ErrLocked              = errors.New("vault: locked")
	ErrAlreadyUnlocked     = errors.New("vault: already unlocked")
	ErrVaultExists         = errors.New("vault: vault already exists")
	ErrNoVault             = errors.New("vault: no vault found")
	ErrItemNotFound        = errors.New("vault: item not found")
	ErrEmptyPassword       = errors.New("vault: empty password")
	ErrMalformedCredential = errors.New("vault: malformed credential record")
	ErrNoFilePicker        = errors.New("vault: no file picker configured")

	// ErrStrategyNotApplicable is returned by a KeyCandidateStrategy that
	// has nothing to offer for a given envelope.
	ErrStrategyNotApplicable = errors.New("vault: key strategy not applicable")

	// ErrWrongPasswordOrCorrupted also matches ErrDecryptionFailed; the two
	// causes cannot be told apart.
	ErrWrongPasswordOrCorrupted = fmt.Errorf("%w: wrong password or corrupted data", ErrDecryptionFailed)
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
