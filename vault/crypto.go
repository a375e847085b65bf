package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "secure-vault v1"

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Zero securely wipes a byte slice from memory.
func Zero(b []byte) {
	zero(b)
}

func NewSalt() ([]byte, error) {
	return randBytes(SaltLen)
}

// expandKey turns a KDF master secret into the encryption key. The master
// is left for the caller to wipe.
func expandKey(master, info []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, master, nil, info)
	key := make([]byte, KeyLen)
	if _, err := io.ReadFull(h, key); err != nil {
		zero(key)
		return nil, err
	}
	return key, nil
}

func AEADSeal(key, plaintext, aad []byte) ([]byte, []byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := randBytes(NonceLen)
	if err != nil {
		return nil, nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, aad)
	return nonce, ct, nil
}

func AEADOpen(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, aad)
}

var errBadPadding = errors.New("bad padding")

// legacyCBCOpen reads the unauthenticated AES-256-CBC layout (iv || body,
// PKCS#7 padded) that older vault files used. A wrong key usually shows up
// as bad padding, but not always; callers must still validate the result.
func legacyCBCOpen(key, packed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(packed) < 2*aes.BlockSize || len(packed)%aes.BlockSize != 0 {
		return nil, errors.New("legacy ciphertext has invalid length")
	}
	iv, body := packed[:aes.BlockSize], packed[aes.BlockSize:]

	pt := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, body)

	n := int(pt[len(pt)-1])
	if n == 0 || n > aes.BlockSize {
		zero(pt)
		return nil, errBadPadding
	}
	for _, b := range pt[len(pt)-n:] {
		if int(b) != n {
			zero(pt)
			return nil, errBadPadding
		}
	}
	return pt[:len(pt)-n], nil
}
