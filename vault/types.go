package vault

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	MasterKeyLen = 32
	KeyLen       = 32
	SaltLen      = 16
	NonceLen     = 24

	EnvelopeType    = "secure-vault"
	EnvelopeVersion = 1
	SchemaVersion   = 1
	FileExtension   = ".vault"

	MethodPBKDF2   = "pbkdf2"
	MethodArgon2id = "argon2id"

	DefaultIterations  = 210000
	MinIterations      = 10000
	maxIterations      = 10000000
	maxArgonMemory     = 2 * 1024 * 1024
	defaultArgonTime   = 3
	defaultArgonMemory = 64 * 1024
)

// KDFParams selects and parameterizes the password-based derivation. For
// pbkdf2 only Iterations is read; argon2id reads Time, Memory and Threads.
type KDFParams struct {
	Method     string
	Iterations int
	Time       uint32
	Memory     uint32
	Threads    uint8
	Salt       []byte
}

func DefaultKDFParams() KDFParams {
	return KDFParams{
		Method:     MethodPBKDF2,
		Iterations: DefaultIterations,
		Time:       defaultArgonTime,
		Memory:     defaultArgonMemory,
		Threads:    1,
	}
}

func (p KDFParams) validate() error {
	switch p.Method {
	case MethodPBKDF2:
		if p.Iterations < 1 || p.Iterations > maxIterations {
			return fmt.Errorf("pbkdf2 iterations out of range: %d", p.Iterations)
		}
	case MethodArgon2id:
		if p.Time < 1 || p.Threads < 1 || p.Memory < 8*uint32(p.Threads) || p.Memory > maxArgonMemory {
			return fmt.Errorf("argon2id parameters out of range: t=%d m=%d p=%d", p.Time, p.Memory, p.Threads)
		}
	default:
		return fmt.Errorf("unknown kdf method %q", p.Method)
	}
	return nil
}

func (p KDFParams) info() KDFInfo {
	info := KDFInfo{Method: p.Method}
	switch p.Method {
	case MethodPBKDF2:
		info.Iterations = p.Iterations
	case MethodArgon2id:
		info.Time, info.Memory, info.Threads = p.Time, p.Memory, p.Threads
	}
	return info
}

// KDFInfo is the serialized, salt-free form of KDFParams.
type KDFInfo struct {
	Method     string `json:"method"`
	Iterations int    `json:"iterations,omitempty"`
	Time       uint32 `json:"time,omitempty"`
	Memory     uint32 `json:"memory,omitempty"`
	Threads    uint8  `json:"threads,omitempty"`
}

func (i KDFInfo) params(salt []byte) (KDFParams, error) {
	p := KDFParams{
		Method:     i.Method,
		Iterations: i.Iterations,
		Time:       i.Time,
		Memory:     i.Memory,
		Threads:    i.Threads,
		Salt:       salt,
	}
	if p.Method == "" {
		p.Method = MethodPBKDF2
	}
	if p.Method == MethodPBKDF2 && p.Iterations == 0 {
		p.Iterations = DefaultIterations
	}
	return p, p.validate()
}

// Credential is stored next to, not inside, the envelope. KeyHash only
// supports checking a password attempt; it cannot recover the key.
type Credential struct {
	Salt      string    `json:"salt"`
	KeyHash   string    `json:"keyHash"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	KDF       *KDFInfo  `json:"kdf,omitempty"`
}

func newCredential(key *Key, createdAt, now time.Time) *Credential {
	info := key.Params.info()
	return &Credential{
		Salt:      base64.StdEncoding.EncodeToString(key.Params.Salt),
		KeyHash:   HashKey(key.material),
		CreatedAt: createdAt,
		UpdatedAt: now,
		KDF:       &info,
	}
}

func (c *Credential) kdfParams() (KDFParams, error) {
	salt, err := base64.StdEncoding.DecodeString(c.Salt)
	if err != nil {
		return KDFParams{}, fmt.Errorf("%w: salt: %v", ErrMalformedCredential, err)
	}
	var info KDFInfo
	if c.KDF != nil {
		info = *c.KDF
	}
	p, err := info.params(salt)
	if err != nil {
		return KDFParams{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	return p, nil
}

// matches reports whether key is the one this record was written for.
func (c *Credential) matches(key *Key) bool {
	return c.Salt == base64.StdEncoding.EncodeToString(key.Params.Salt) &&
		c.KeyHash == HashKey(key.material)
}

// Envelope is the persisted and exported wire form of a vault.
type Envelope struct {
	Type           string          `json:"type"`
	Version        int             `json:"version"`
	Timestamp      string          `json:"timestamp"`
	Data           string          `json:"data"`
	EncryptionInfo *EncryptionInfo `json:"encryptionInfo,omitempty"`
}

// EncryptionInfo is advisory: it names the derivation that produced the key
// for Data so a fresh session can import the file with only the password.
type EncryptionInfo struct {
	KDFInfo
	SaltUsed bool   `json:"saltUsed"`
	Salt     string `json:"salt,omitempty"`
}

func encryptionInfoFor(p KDFParams) *EncryptionInfo {
	if p.Method != MethodPBKDF2 && p.Method != MethodArgon2id {
		return nil
	}
	return &EncryptionInfo{
		KDFInfo:  p.info(),
		SaltUsed: len(p.Salt) > 0,
		Salt:     base64.StdEncoding.EncodeToString(p.Salt),
	}
}
