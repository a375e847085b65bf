package vault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string         `json:"name"`
	Items map[string]int `json:"items"`
	Blob  []byte         `json:"blob"`
}

func TestEncryptDecrypt(t *testing.T) {
	key := testKey(t, "pw")
	in := sample{Name: "x", Items: map[string]int{"a": 1, "b": 2}, Blob: []byte{0, 1, 2, 255}}

	ct, err := Encrypt(in, key.material)
	require.NoError(t, err)

	packed, err := base64.StdEncoding.DecodeString(ct)
	require.NoError(t, err)
	assert.Equal(t, magicAEAD, packed[0])

	var out sample
	require.NoError(t, Decrypt(ct, key.material, &out))
	assert.Equal(t, in, out)

	again, err := Encrypt(in, key.material)
	require.NoError(t, err)
	assert.NotEqual(t, ct, again, "every encryption uses a fresh nonce")
}

func TestDecryptFailures(t *testing.T) {
	key := testKey(t, "pw")
	other := testKey(t, "other")
	ct, err := Encrypt(map[string]string{"k": "v"}, key.material)
	require.NoError(t, err)

	packed, _ := base64.StdEncoding.DecodeString(ct)
	flipped := append([]byte{}, packed...)
	flipped[len(flipped)/2] ^= 0x01
	unknown := append([]byte{'Z'}, packed[1:]...)

	tests := []struct {
		name string
		ct   string
		key  []byte
	}{
		{"wrong key", ct, other.material},
		{"tampered", base64.StdEncoding.EncodeToString(flipped), key.material},
		{"not base64", "!!!" + ct, key.material},
		{"empty", "", key.material},
		{"unknown magic", base64.StdEncoding.EncodeToString(unknown), key.material},
		{"truncated", base64.StdEncoding.EncodeToString(packed[:10]), key.material},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := map[string]string{"untouched": "yes"}
			err := Decrypt(tt.ct, tt.key, &out)
			assert.ErrorIs(t, err, ErrDecryptionFailed)
			assert.Equal(t, map[string]string{"untouched": "yes"}, out)
		})
	}
}

func TestDecryptLegacyCBC(t *testing.T) {
	key := testKey(t, "pw")
	other := testKey(t, "other")

	ct := legacySeal(t, key.material, []byte(`{"name":"legacy","items":{"a":1}}`))
	var out sample
	require.NoError(t, Decrypt(ct, key.material, &out))
	assert.Equal(t, "legacy", out.Name)
	assert.Equal(t, map[string]int{"a": 1}, out.Items)

	assert.ErrorIs(t, Decrypt(ct, other.material, &out), ErrDecryptionFailed)

	empty := legacySeal(t, key.material, nil)
	assert.ErrorIs(t, Decrypt(empty, key.material, &out), ErrDecryptionFailed)

	garbage := legacySeal(t, key.material, []byte("not json at all"))
	assert.ErrorIs(t, Decrypt(garbage, key.material, &out), ErrDecryptionFailed)
}
