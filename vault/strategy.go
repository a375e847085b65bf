package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// KeyCandidateStrategy produces one candidate key for an envelope. The
// decoder tries strategies in order and keeps the first key that opens the
// data, which is how vaults written under older derivation conventions stay
// readable.
type KeyCandidateStrategy interface {
	Name() string
	DeriveKey(ctx context.Context, password []byte, env Envelope, hint *Credential) (*Key, error)
}

const (
	LegacyFixedSalt       = "securevault-static-salt"
	LegacyIterations      = 10000
	legacyMethodDigest    = "sha256"
	legacyMethodRaw       = "raw"
	strategyNameCurrent   = "current-kdf"
	strategyNameFixedSalt = "legacy-fixed-salt-pbkdf2"
	strategyNameNoSalt    = "legacy-no-salt-pbkdf2"
	strategyNameDigest    = "legacy-password-digest"
	strategyNameRaw       = "legacy-raw-password"
)

// DefaultStrategies is the decoder's order: today's scheme first, then the
// historical ones from newest to oldest.
func DefaultStrategies() []KeyCandidateStrategy {
	return []KeyCandidateStrategy{
		CurrentKDF{},
		LegacyFixedSaltPBKDF2{Salt: LegacyFixedSalt, Iterations: LegacyIterations},
		LegacyNoSalt{Iterations: LegacyIterations},
		LegacyPasswordDigest{},
		LegacyRawPassword{},
	}
}

// CurrentKDF derives with the salt and parameters named in the envelope's
// encryptionInfo, or failing that, in the credential record.
type CurrentKDF struct{}

func (CurrentKDF) Name() string { return strategyNameCurrent }

func (CurrentKDF) DeriveKey(ctx context.Context, password []byte, env Envelope, hint *Credential) (*Key, error) {
	if info := env.EncryptionInfo; info != nil && info.SaltUsed && info.Salt != "" {
		salt, err := base64.StdEncoding.DecodeString(info.Salt)
		if err != nil {
			return nil, fmt.Errorf("%w: encryptionInfo salt: %v", ErrStrategyNotApplicable, err)
		}
		p, err := info.KDFInfo.params(salt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStrategyNotApplicable, err)
		}
		return DeriveKey(ctx, password, p)
	}
	if hint != nil {
		p, err := hint.kdfParams()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStrategyNotApplicable, err)
		}
		return DeriveKey(ctx, password, p)
	}
	return nil, ErrStrategyNotApplicable
}

// LegacyFixedSaltPBKDF2 is the era when every vault shared one salt.
type LegacyFixedSaltPBKDF2 struct {
	Salt       string
	Iterations int
}

func (LegacyFixedSaltPBKDF2) Name() string { return strategyNameFixedSalt }

func (s LegacyFixedSaltPBKDF2) DeriveKey(ctx context.Context, password []byte, _ Envelope, _ *Credential) (*Key, error) {
	return legacyPBKDF2(ctx, password, []byte(s.Salt), s.Iterations)
}

// LegacyNoSalt is PBKDF2 with an empty salt.
type LegacyNoSalt struct {
	Iterations int
}

func (LegacyNoSalt) Name() string { return strategyNameNoSalt }

func (s LegacyNoSalt) DeriveKey(ctx context.Context, password []byte, _ Envelope, _ *Credential) (*Key, error) {
	return legacyPBKDF2(ctx, password, nil, s.Iterations)
}

// Legacy PBKDF2 keys were used directly, without the HKDF expansion step.
func legacyPBKDF2(ctx context.Context, password, salt []byte, iterations int) (*Key, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	if iterations < 1 {
		return nil, ErrStrategyNotApplicable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := KDFParams{Method: MethodPBKDF2, Iterations: iterations, Salt: bytes.Clone(salt)}
	return &Key{
		material: pbkdf2Key(password, salt, iterations),
		Params:   p,
	}, nil
}

// LegacyPasswordDigest used SHA-256(password) as the key.
type LegacyPasswordDigest struct{}

func (LegacyPasswordDigest) Name() string { return strategyNameDigest }

func (LegacyPasswordDigest) DeriveKey(_ context.Context, password []byte, _ Envelope, _ *Credential) (*Key, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	sum := sha256.Sum256(password)
	return &Key{material: sum[:], Params: KDFParams{Method: legacyMethodDigest}}, nil
}

// LegacyRawPassword used the password bytes themselves, zero padded or
// truncated to the key size.
type LegacyRawPassword struct{}

func (LegacyRawPassword) Name() string { return strategyNameRaw }

func (LegacyRawPassword) DeriveKey(_ context.Context, password []byte, _ Envelope, _ *Credential) (*Key, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	key := make([]byte, KeyLen)
	copy(key, password)
	return &Key{material: key, Params: KDFParams{Method: legacyMethodRaw}}, nil
}
