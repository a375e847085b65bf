package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Codec turns a Document into envelope bytes and back.
type Codec struct {
	Strategies []KeyCandidateStrategy

	now func() time.Time
	log zerolog.Logger
}

func NewCodec(log zerolog.Logger) *Codec {
	return &Codec{Strategies: DefaultStrategies(), now: time.Now, log: log}
}

func (c *Codec) stamp() time.Time {
	return c.now().UTC().Round(0)
}

// Encode merges any pending partials into doc, stamps its meta, encrypts it
// under key and wraps it in an envelope. It returns the envelope bytes and
// the exact document they contain. Nothing is written anywhere.
func (c *Codec) Encode(doc Document, key *Key, pending ...Partial) ([]byte, Document, error) {
	merged, err := mergeAll(doc, pending)
	if err != nil {
		return nil, Document{}, err
	}
	now := c.stamp()
	merged.Meta = Meta{SchemaVersion: SchemaVersion, UpdatedAt: now}

	data, err := Encrypt(merged, key.material)
	if err != nil {
		return nil, Document{}, err
	}
	env := Envelope{
		Type:           EnvelopeType,
		Version:        EnvelopeVersion,
		Timestamp:      now.Format(time.RFC3339),
		Data:           data,
		EncryptionInfo: encryptionInfoFor(key.Params),
	}
	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, Document{}, fmt.Errorf("vault: encode envelope: %w", err)
	}
	return raw, merged, nil
}

// ParseEnvelope checks the outer structure only.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if env.Type != EnvelopeType {
		return Envelope{}, fmt.Errorf("%w: unexpected type %q", ErrInvalidFormat, env.Type)
	}
	if env.Version < 0 || env.Version > EnvelopeVersion {
		return Envelope{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, env.Version)
	}
	if env.Data == "" {
		return Envelope{}, fmt.Errorf("%w: missing data", ErrInvalidFormat)
	}
	return env, nil
}

// Decoded is a successfully opened envelope.
type Decoded struct {
	Document Document
	Envelope Envelope
	Key      *Key
	Strategy string
}

// Current reports whether the key came from today's derivation scheme.
func (d *Decoded) Current() bool {
	return d.Strategy == strategyNameCurrent
}

// Decode opens raw with password, trying each strategy in order. hint may be
// nil; CurrentKDF falls back to its salt when the envelope names none.
func (c *Codec) Decode(ctx context.Context, raw []byte, password []byte, hint *Credential) (*Decoded, error) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrWrongPasswordOrCorrupted, ErrEmptyPassword)
	}

	seen := map[[sha256.Size]byte]bool{}
	for _, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key, err := s.DeriveKey(ctx, password, env, hint)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.Is(err, ErrStrategyNotApplicable) {
				c.log.Debug().Str("strategy", s.Name()).Err(err).Msg("key strategy failed")
			}
			continue
		}

		fp := sha256.Sum256(key.material)
		if seen[fp] {
			key.Wipe()
			continue
		}
		seen[fp] = true

		doc, err := decodeDocument(env.Data, key.material)
		if err != nil {
			key.Wipe()
			continue
		}
		c.log.Debug().Str("strategy", s.Name()).Int("version", env.Version).Msg("envelope decoded")
		return &Decoded{Document: doc, Envelope: env, Key: key, Strategy: s.Name()}, nil
	}
	return nil, ErrWrongPasswordOrCorrupted
}

// decodeDocument accepts only a JSON object that unmarshals into a Document;
// a wrong legacy key can decrypt to bytes that are valid JSON of some other
// shape.
func decodeDocument(data string, key []byte) (Document, error) {
	var payload json.RawMessage
	if err := Decrypt(data, key, &payload); err != nil {
		return Document{}, err
	}
	defer zero(payload)
	if t := bytes.TrimSpace(payload); len(t) == 0 || t[0] != '{' {
		return Document{}, fmt.Errorf("%w: payload is not an object", ErrDecryptionFailed)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return EnsureCollections(doc), nil
}
