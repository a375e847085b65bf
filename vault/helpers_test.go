package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/securevault/store"
)

var testKDF = KDFParams{Method: MethodPBKDF2, Iterations: 1000}

var errInjected = errors.New("injected failure")

func testKey(t *testing.T, password string) *Key {
	t.Helper()
	salt, err := NewSalt()
	require.NoError(t, err)
	p := testKDF
	p.Salt = salt
	key, err := DeriveKey(context.Background(), []byte(password), p)
	require.NoError(t, err)
	return key
}

// legacySeal produces the read-only 'C' ciphertext format.
func legacySeal(t *testing.T, key, plaintext []byte) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte{}, plaintext...)
	for i := 0; i < n; i++ {
		padded = append(padded, byte(n))
	}
	iv := make([]byte, aes.BlockSize)
	_, err = rand.Read(iv)
	require.NoError(t, err)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	packed := append([]byte{magicLegacyCBC}, iv...)
	packed = append(packed, out...)
	return base64.StdEncoding.EncodeToString(packed)
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) hooks() Events {
	return Events{
		OnLogin:        func() { l.add("login") },
		OnLogout:       func() { l.add("logout") },
		OnSaveComplete: func(c Collection) { l.add("saved:" + string(c)) },
	}
}

// harness is one simulated installation: its durable stores outlive the
// sessions opened on it.
type harness struct {
	kv      *store.Memory
	backend Backend
	creds   CredentialStore
	files   store.LocalFiles
	events  *eventLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv := store.NewMemory()
	return &harness{
		kv:      kv,
		backend: store.NewKVBackend(kv),
		creds:   NewCredentialStore(kv),
		files:   store.LocalFiles{Dir: t.TempDir()},
		events:  &eventLog{},
	}
}

func (h *harness) session(t *testing.T, opts ...func(*Options)) *Session {
	t.Helper()
	o := Options{KDF: testKDF, FlushTimeout: 200 * time.Millisecond}
	for _, f := range opts {
		f(&o)
	}
	s, err := NewSession(Deps{
		Backend:     h.backend,
		Credentials: h.creds,
		Secrets:     store.NewSecrets(),
		Files:       h.files,
		Events:      h.events.hooks(),
		Log:         zerolog.Nop(),
	}, o)
	require.NoError(t, err)
	return s
}

func (h *harness) created(t *testing.T, password string) *Session {
	t.Helper()
	s := h.session(t)
	require.NoError(t, s.CreateVault(context.Background(), []byte(password)))
	return s
}

func (h *harness) rawEnvelope(t *testing.T) []byte {
	t.Helper()
	raw, err := h.backend.Load(context.Background())
	require.NoError(t, err)
	return raw
}

// flakyBackend fails the next n saves.
type flakyBackend struct {
	Backend
	fail atomic.Int32
}

func (f *flakyBackend) Save(ctx context.Context, b []byte) error {
	if f.fail.Add(-1) >= 0 {
		return errInjected
	}
	return f.Backend.Save(ctx, b)
}

type flakyCredentials struct {
	CredentialStore
	failSave atomic.Bool
}

func (f *flakyCredentials) SaveCredential(ctx context.Context, c *Credential) error {
	if f.failSave.Load() {
		return errInjected
	}
	return f.CredentialStore.SaveCredential(ctx, c)
}

func collectionsOf(d Document) Document {
	d.Meta = Meta{}
	return d
}
