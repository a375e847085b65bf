package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	ctx := context.Background()
	salt := []byte("0123456789abcdef")

	t.Run("deterministic", func(t *testing.T) {
		p := testKDF
		p.Salt = salt
		a, err := DeriveKey(ctx, []byte("hunter2"), p)
		require.NoError(t, err)
		b, err := DeriveKey(ctx, []byte("hunter2"), p)
		require.NoError(t, err)

		assert.Len(t, a.material, KeyLen)
		assert.Equal(t, a.material, b.material)
		assert.Equal(t, salt, a.Params.Salt)
	})

	t.Run("salt and password matter", func(t *testing.T) {
		p := testKDF
		p.Salt = salt
		base, err := DeriveKey(ctx, []byte("hunter2"), p)
		require.NoError(t, err)

		other, err := DeriveKey(ctx, []byte("hunter3"), p)
		require.NoError(t, err)
		assert.NotEqual(t, base.material, other.material)

		p.Salt = []byte("fedcba9876543210")
		other, err = DeriveKey(ctx, []byte("hunter2"), p)
		require.NoError(t, err)
		assert.NotEqual(t, base.material, other.material)
	})

	t.Run("argon2id", func(t *testing.T) {
		p := KDFParams{Method: MethodArgon2id, Time: 1, Memory: 1024, Threads: 1, Salt: salt}
		a, err := DeriveKey(ctx, []byte("hunter2"), p)
		require.NoError(t, err)
		b, err := DeriveKey(ctx, []byte("hunter2"), p)
		require.NoError(t, err)
		assert.Len(t, a.material, KeyLen)
		assert.Equal(t, a.material, b.material)
	})

	t.Run("wipe", func(t *testing.T) {
		p := testKDF
		p.Salt = salt
		k, err := DeriveKey(ctx, []byte("hunter2"), p)
		require.NoError(t, err)
		k.Wipe()
		assert.Equal(t, make([]byte, KeyLen), k.material)
	})
}

func TestDeriveKeyRejects(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		password string
		params   KDFParams
	}{
		{"empty password", "", testKDF},
		{"unknown method", "pw", KDFParams{Method: "scrypt"}},
		{"zero iterations", "pw", KDFParams{Method: MethodPBKDF2}},
		{"argon2id without threads", "pw", KDFParams{Method: MethodArgon2id, Time: 1, Memory: 1024}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := DeriveKey(ctx, []byte(tt.password), tt.params)
			assert.Error(t, err)
			assert.Nil(t, k)
		})
	}

	_, err := DeriveKey(ctx, nil, testKDF)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestDeriveKeyCancellation(t *testing.T) {
	t.Run("already cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		k, err := DeriveKey(ctx, []byte("pw"), KDFParams{Method: MethodPBKDF2, Iterations: 1000, Salt: []byte("s")})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, k)
	})

	t.Run("abandoned mid derivation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		start := time.Now()
		k, err := DeriveKey(ctx, []byte("pw"), KDFParams{Method: MethodPBKDF2, Iterations: 5_000_000, Salt: []byte("s")})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Nil(t, k)
		assert.Less(t, time.Since(start), time.Second, "caller must not wait for the derivation")
	})
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	key := testKey(t, "correct horse")
	now := time.Now().UTC()
	cred := newCredential(key, now, now)

	ok, err := Verify(ctx, []byte("correct horse"), cred)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(ctx, []byte("battery staple"), cred)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Verify(ctx, nil, cred)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, HashKey(key.material), cred.KeyHash)

	malformed := map[string]func(c *Credential){
		"bad salt":       func(c *Credential) { c.Salt = "%%%" },
		"empty hash":     func(c *Credential) { c.KeyHash = "" },
		"short hash":     func(c *Credential) { c.KeyHash = "AAAA" },
		"unknown method": func(c *Credential) { c.KDF = &KDFInfo{Method: "md5"} },
	}
	for name, mutate := range malformed {
		t.Run(name, func(t *testing.T) {
			c := *cred
			mutate(&c)
			ok, err := Verify(ctx, []byte("correct horse"), &c)
			assert.ErrorIs(t, err, ErrMalformedCredential)
			assert.False(t, ok)
		})
	}

	_, err = Verify(ctx, []byte("x"), nil)
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

func TestCredentialWithoutKDFDefaultsToPBKDF2(t *testing.T) {
	ctx := context.Background()
	p := KDFParams{Method: MethodPBKDF2, Iterations: DefaultIterations, Salt: []byte("0123456789abcdef")}
	key, err := DeriveKey(ctx, []byte("pw"), p)
	require.NoError(t, err)

	cred := newCredential(key, time.Time{}, time.Time{})
	cred.KDF = nil

	ok, err := Verify(ctx, []byte("pw"), cred)
	require.NoError(t, err)
	assert.True(t, ok)
}
