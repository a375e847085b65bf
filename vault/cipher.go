package vault

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Ciphertext strings are base64 of a one-byte format magic followed by the
// format's payload:
//
//	'X' nonce(24) || XChaCha20-Poly1305 sealed JSON   (written today)
//	'C' iv(16)    || AES-256-CBC PKCS#7 JSON          (read-only, legacy)
const (
	magicAEAD      = byte('X')
	magicLegacyCBC = byte('C')
)

var aad = []byte(EnvelopeType)

// Encrypt serializes v to JSON and seals it under key.
func Encrypt(v any, key []byte) (string, error) {
	pt, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("vault: encode payload: %w", err)
	}
	defer zero(pt)

	nonce, ct, err := AEADSeal(key, pt, aad)
	if err != nil {
		return "", fmt.Errorf("vault: seal payload: %w", err)
	}

	packed := make([]byte, 0, 1+len(nonce)+len(ct))
	packed = append(packed, magicAEAD)
	packed = append(packed, nonce...)
	packed = append(packed, ct...)
	return base64.StdEncoding.EncodeToString(packed), nil
}

// Decrypt opens ciphertext under key and unmarshals the JSON into out.
// Every failure, whether authentication, padding, emptiness or parsing, is
// ErrDecryptionFailed; out is only written when decryption succeeded.
func Decrypt(ciphertext string, key []byte, out any) error {
	packed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return fmt.Errorf("%w: ciphertext is not base64", ErrDecryptionFailed)
	}
	pt, err := open(packed, key)
	if err != nil {
		return err
	}
	defer zero(pt)

	if len(bytes.TrimSpace(pt)) == 0 {
		return fmt.Errorf("%w: empty plaintext", ErrDecryptionFailed)
	}
	if !json.Valid(pt) {
		return fmt.Errorf("%w: plaintext is not JSON", ErrDecryptionFailed)
	}
	if err := json.Unmarshal(pt, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return nil
}

func open(packed, key []byte) ([]byte, error) {
	if len(packed) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrDecryptionFailed)
	}
	switch packed[0] {
	case magicAEAD:
		if len(packed) < 1+NonceLen {
			return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
		}
		pt, err := AEADOpen(key, packed[1:1+NonceLen], aad, packed[1+NonceLen:])
		if err != nil {
			return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
		}
		return pt, nil
	case magicLegacyCBC:
		pt, err := legacyCBCOpen(key, packed[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: legacy: %v", ErrDecryptionFailed, err)
		}
		return pt, nil
	default:
		return nil, fmt.Errorf("%w: unknown ciphertext format %#x", ErrDecryptionFailed, packed[0])
	}
}
