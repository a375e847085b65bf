package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fahmaliyi/securevault/store"
)

// Backend is where the encrypted envelope lives. Load returns
// store.ErrNotFound when nothing has been saved yet. Save must replace the
// previous envelope atomically.
type Backend interface {
	Save(ctx context.Context, envelope []byte) error
	Load(ctx context.Context) ([]byte, error)
}

// ActiveFile is implemented by backends that persist to a user-chosen file.
type ActiveFile interface {
	SetActiveFile(path string) error
	ActiveFile() (string, bool)
	ClearActiveFile()
}

// FilePicker is the open-file / save-as affordance used by import and
// export. Open also returns where the bytes came from.
type FilePicker interface {
	Open(ctx context.Context, name string) ([]byte, string, error)
	SaveAs(ctx context.Context, name string, data []byte) (string, error)
}

// SecretStore is volatile, per-session storage for key material. Put
// stores a copy of secret, so the caller may wipe its slice afterwards.
// Get returns a copy the caller owns and should wipe after use. Wipe
// zeroes the stored bytes before forgetting them.
type SecretStore interface {
	Put(name string, secret []byte)
	Get(name string) ([]byte, bool)
	Wipe(name string)
}

// CredentialStore persists the single Credential of a vault. Load returns
// store.ErrNotFound when no record exists.
type CredentialStore interface {
	LoadCredential(ctx context.Context) (*Credential, error)
	SaveCredential(ctx context.Context, c *Credential) error
	DeleteCredential(ctx context.Context) error
}

const CredentialKey = "secure-vault.credential"

type kvCredentials struct {
	kv  store.KeyValue
	key func() (string, error)
}

// NewCredentialStore keeps the credential as JSON under CredentialKey.
func NewCredentialStore(kv store.KeyValue) CredentialStore {
	return &kvCredentials{kv: kv, key: func() (string, error) { return CredentialKey, nil }}
}

// NewFileCredentialStore keeps one credential per vault file, keyed by the
// file's path, so switching the active file switches the record with it.
func NewFileCredentialStore(kv store.KeyValue, files ActiveFile) CredentialStore {
	return &kvCredentials{kv: kv, key: func() (string, error) {
		path, ok := files.ActiveFile()
		if !ok {
			return "", store.ErrNoActiveFile
		}
		sum := sha256.Sum256([]byte(path))
		return CredentialKey + "." + hex.EncodeToString(sum[:8]), nil
	}}
}

func (k *kvCredentials) LoadCredential(ctx context.Context) (*Credential, error) {
	key, err := k.key()
	if err != nil {
		return nil, err
	}
	b, err := k.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var c Credential
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	return &c, nil
}

func (k *kvCredentials) SaveCredential(ctx context.Context, c *Credential) error {
	key, err := k.key()
	if err != nil {
		return err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return k.kv.Put(ctx, key, b)
}

func (k *kvCredentials) DeleteCredential(ctx context.Context) error {
	key, err := k.key()
	if err != nil {
		return err
	}
	return k.kv.Delete(ctx, key)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
