package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// Key is derived key material together with the parameters that produced
// it. It lives only in memory; Wipe it once it has been handed to the
// session's secret store.
type Key struct {
	material []byte
	Params   KDFParams
}

func (k *Key) Wipe() {
	if k != nil {
		zero(k.material)
	}
}

// DeriveKey runs the password-based derivation off the caller's goroutine so
// that ctx can abandon it. A cancelled derivation returns ctx.Err() and its
// eventual result is wiped, never returned.
func DeriveKey(ctx context.Context, password []byte, p KDFParams) (*Key, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw := bytes.Clone(password)
	p.Salt = bytes.Clone(p.Salt)

	type result struct {
		key []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		key, err := deriveMaterial(pw, p)
		zero(pw)
		ch <- result{key, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			r := <-ch
			zero(r.key)
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &Key{material: r.key, Params: p}, nil
	}
}

func deriveMaterial(password []byte, p KDFParams) ([]byte, error) {
	var master []byte
	switch p.Method {
	case MethodPBKDF2:
		master = pbkdf2Key(password, p.Salt, p.Iterations)
	case MethodArgon2id:
		master = argon2.IDKey(password, p.Salt, p.Time, p.Memory, p.Threads, MasterKeyLen)
	default:
		return nil, fmt.Errorf("unknown kdf method %q", p.Method)
	}
	defer zero(master)
	return expandKey(master, []byte(keyInfo))
}

func pbkdf2Key(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, MasterKeyLen, sha256.New)
}

const keyCheckDomain = "secure-vault/key-check"

// HashKey returns the digest stored in a Credential. It is domain separated
// so it never equals anything else derived from the key.
func HashKey(key []byte) string {
	h := sha256.New()
	h.Write([]byte(keyCheckDomain))
	h.Write(key)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Verify reports whether password derives the key recorded in cred. A wrong
// or empty password is (false, nil); an error means the record itself is
// unusable or ctx ended.
func Verify(ctx context.Context, password []byte, cred *Credential) (bool, error) {
	if cred == nil {
		return false, ErrMalformedCredential
	}
	params, err := cred.kdfParams()
	if err != nil {
		return false, err
	}
	want, err := base64.StdEncoding.DecodeString(cred.KeyHash)
	if err != nil || len(want) != sha256.Size {
		return false, fmt.Errorf("%w: keyHash", ErrMalformedCredential)
	}
	if len(password) == 0 {
		return false, nil
	}

	key, err := DeriveKey(ctx, password, params)
	if errors.Is(err, ErrEmptyPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer key.Wipe()

	got, _ := base64.StdEncoding.DecodeString(HashKey(key.material))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
