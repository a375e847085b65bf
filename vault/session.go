package vault

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

type State int

const (
	StateLoggedOut State = iota
	StateCreatingVault
	StateUnlocking
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged-out"
	case StateCreatingVault:
		return "creating-vault"
	case StateUnlocking:
		return "unlocking"
	case StateLoggedIn:
		return "logged-in"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	sessionKeyName      = "session-key"
	DefaultFlushTimeout = 2 * time.Second
)

// Deps are the collaborators a Session talks to. Backend, Credentials and
// Secrets are required; without Files export and import are unavailable.
type Deps struct {
	Backend     Backend
	Credentials CredentialStore
	Secrets     SecretStore
	Files       FilePicker
	Events      Events
	Log         zerolog.Logger
}

type Options struct {
	// KDF is used for new keys: CreateVault, ChangePassword and migration
	// of legacy vaults. Salt is ignored; every new key gets a fresh one.
	KDF          KDFParams
	FlushTimeout time.Duration
	Strategies   []KeyCandidateStrategy
	Now          func() time.Time
}

func DefaultOptions() Options {
	return Options{
		KDF:          DefaultKDFParams(),
		FlushTimeout: DefaultFlushTimeout,
		Strategies:   DefaultStrategies(),
		Now:          time.Now,
	}
}

// Session owns one unlocked vault: the decrypted document, the staged
// partial updates of feature modules and the working key. Every write to
// the backend goes through a single one-at-a-time path.
type Session struct {
	backend Backend
	creds   CredentialStore
	secrets SecretStore
	files   FilePicker
	events  Events
	log     zerolog.Logger

	codec        *Codec
	kdf          KDFParams
	flushTimeout time.Duration

	writes *semaphore.Weighted

	mu        sync.RWMutex
	state     State
	gen       uint64
	doc       Document
	pending   []Partial
	cred      *Credential
	keyParams KDFParams

	fmu       sync.Mutex
	flushers  map[int]Flusher
	flusherID int
}

func NewSession(d Deps, o Options) (*Session, error) {
	if d.Backend == nil || d.Credentials == nil || d.Secrets == nil {
		return nil, errors.New("vault: session needs a backend, a credential store and a secret store")
	}

	def := DefaultOptions()
	if o.KDF.Method == "" {
		o.KDF = def.KDF
	}
	o.KDF.Salt = nil
	if err := o.KDF.validate(); err != nil {
		return nil, fmt.Errorf("vault: kdf options: %w", err)
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = def.FlushTimeout
	}
	if o.Strategies == nil {
		o.Strategies = def.Strategies
	}
	if o.Now == nil {
		o.Now = def.Now
	}

	codec := NewCodec(d.Log)
	codec.Strategies = o.Strategies
	codec.now = o.Now

	return &Session{
		backend:      d.Backend,
		creds:        d.Credentials,
		secrets:      d.Secrets,
		files:        d.Files,
		events:       d.Events,
		log:          d.Log,
		codec:        codec,
		kdf:          o.KDF,
		flushTimeout: o.FlushTimeout,
		writes:       semaphore.NewWeighted(1),
		flushers:     map[int]Flusher{},
	}, nil
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsUnlocked() bool {
	return s.State() == StateLoggedIn
}

// begin moves a logged out session into a transient login state and
// returns the generation that a successful login must still observe.
func (s *Session) begin(target State) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoggedOut {
		return 0, fmt.Errorf("%w: session is %s", ErrAlreadyUnlocked, s.state)
	}
	s.state = target
	return s.gen, nil
}

func (s *Session) settle(target State, err *error) {
	if *err == nil {
		return
	}
	s.mu.Lock()
	if s.state == target {
		s.state = StateLoggedOut
	}
	s.mu.Unlock()
}

// adopt installs a freshly opened vault. It refuses when the session was
// logged out (or replaced) since gen was read.
func (s *Session) adopt(gen uint64, doc Document, key *Key, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return fmt.Errorf("%w: session changed during login", ErrLocked)
	}
	s.secrets.Put(sessionKeyName, key.material)
	s.keyParams = key.Params
	s.keyParams.Salt = bytes.Clone(key.Params.Salt)
	s.doc = EnsureCollections(doc)
	s.pending = nil
	s.cred = cred
	s.state = StateLoggedIn
	s.gen++
	return nil
}

// sessionKey returns a copy of the working key. Callers hold s.mu and must
// Wipe the result.
func (s *Session) sessionKey() (*Key, error) {
	if s.state != StateLoggedIn {
		return nil, ErrLocked
	}
	material, ok := s.secrets.Get(sessionKeyName)
	if !ok {
		return nil, fmt.Errorf("%w: session key missing", ErrLocked)
	}
	p := s.keyParams
	p.Salt = bytes.Clone(p.Salt)
	return &Key{material: material, Params: p}, nil
}

func (s *Session) newKey(ctx context.Context, password []byte) (*Key, error) {
	p := s.kdf
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	p.Salt = salt
	return DeriveKey(ctx, password, p)
}

// CreateVault starts a new, empty vault protected by password.
func (s *Session) CreateVault(ctx context.Context, password []byte) (err error) {
	if len(password) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrEmptyPassword)
	}
	if err := s.writes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.writes.Release(1)

	gen, err := s.begin(StateCreatingVault)
	if err != nil {
		return err
	}
	defer s.settle(StateCreatingVault, &err)

	if _, err := s.backend.Load(ctx); err == nil {
		return ErrVaultExists
	} else if !isNotFound(err) {
		return storageErr("load envelope", err)
	}
	if _, err := s.creds.LoadCredential(ctx); err == nil || errors.Is(err, ErrMalformedCredential) {
		return ErrVaultExists
	} else if !isNotFound(err) {
		return storageErr("load credential", err)
	}

	key, err := s.newKey(ctx, password)
	if err != nil {
		return err
	}
	defer key.Wipe()

	now := s.codec.stamp()
	raw, doc, err := s.codec.Encode(NewDocument(now), key)
	if err != nil {
		return err
	}
	cred := newCredential(key, now, now)
	if err := s.creds.SaveCredential(ctx, cred); err != nil {
		return storageErr("save credential", err)
	}
	if err := s.backend.Save(ctx, raw); err != nil {
		if derr := s.creds.DeleteCredential(context.WithoutCancel(ctx)); derr != nil {
			s.log.Error().Err(derr).Msg("failed to remove credential of unsaved vault")
		}
		return storageErr("save envelope", err)
	}

	if err := s.adopt(gen, doc, key, cred); err != nil {
		return err
	}
	s.log.Info().Str("kdf", key.Params.Method).Msg("vault created")
	s.events.login()
	return nil
}

// Unlock opens the vault in the backend with password. A vault written
// under a legacy key convention is re-encrypted under the current one
// before the session is unlocked.
func (s *Session) Unlock(ctx context.Context, password []byte) (err error) {
	if err := s.writes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.writes.Release(1)

	gen, err := s.begin(StateUnlocking)
	if err != nil {
		return err
	}
	defer s.settle(StateUnlocking, &err)

	raw, err := s.backend.Load(ctx)
	if isNotFound(err) {
		return ErrNoVault
	}
	if err != nil {
		return storageErr("load envelope", err)
	}

	cred, err := s.loadCredential(ctx)
	if err != nil {
		return err
	}
	hint := cred
	if cred != nil {
		ok, err := Verify(ctx, password, cred)
		switch {
		case errors.Is(err, ErrMalformedCredential):
			s.log.Warn().Err(err).Msg("ignoring unusable credential record")
			cred, hint = nil, nil
		case err != nil:
			return err
		case !ok:
			// The record may belong to an envelope that has since been
			// replaced; the envelope decides.
			hint = nil
		}
	}

	dec, err := s.decode(ctx, raw, password, hint)
	if err != nil {
		return err
	}
	if cred != nil && hint == nil {
		s.log.Warn().Msg("credential record does not match the vault; rewriting it")
	}
	key, doc := dec.Key, dec.Document
	defer func() { key.Wipe() }()

	if !dec.Current() {
		migrated, mdoc, mcred, err := s.migrate(ctx, password, doc, raw, dec.Strategy)
		if err != nil {
			return err
		}
		key.Wipe()
		key, doc, cred = migrated, mdoc, mcred
	} else if cred == nil || !cred.matches(key) {
		now := s.codec.stamp()
		created := now
		if cred != nil {
			created = cred.CreatedAt
		}
		cred = newCredential(key, created, now)
		if err := s.creds.SaveCredential(ctx, cred); err != nil {
			return storageErr("save credential", err)
		}
		s.log.Info().Msg("credential record rewritten")
	}

	if err := s.adopt(gen, doc, key, cred); err != nil {
		return err
	}
	s.log.Info().Str("strategy", dec.Strategy).Msg("vault unlocked")
	s.events.login()
	return nil
}

func (s *Session) loadCredential(ctx context.Context) (*Credential, error) {
	cred, err := s.creds.LoadCredential(ctx)
	switch {
	case err == nil:
		return cred, nil
	case isNotFound(err):
		return nil, nil
	case errors.Is(err, ErrMalformedCredential):
		s.log.Warn().Err(err).Msg("ignoring unreadable credential record")
		return nil, nil
	}
	return nil, storageErr("load credential", err)
}

// decode maps codec failures onto what a login attempt reports.
func (s *Session) decode(ctx context.Context, raw, password []byte, hint *Credential) (*Decoded, error) {
	dec, err := s.codec.Decode(ctx, raw, password, hint)
	if err == nil {
		return dec, nil
	}
	if errors.Is(err, ErrInvalidFormat) || ctx.Err() != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
}

// migrate re-encrypts doc under a freshly salted current key and persists
// it with a matching credential. prev is restored if the credential write
// fails.
func (s *Session) migrate(ctx context.Context, password []byte, doc Document, prev []byte, from string) (*Key, Document, *Credential, error) {
	key, err := s.newKey(ctx, password)
	if err != nil {
		return nil, Document{}, nil, err
	}
	raw, out, err := s.codec.Encode(doc, key)
	if err != nil {
		key.Wipe()
		return nil, Document{}, nil, err
	}
	now := s.codec.stamp()
	cred := newCredential(key, now, now)
	if err := s.persist(ctx, raw, prev, cred); err != nil {
		key.Wipe()
		return nil, Document{}, nil, err
	}
	s.log.Info().Str("from", from).Str("kdf", key.Params.Method).Msg("legacy vault migrated")
	return key, out, cred, nil
}

// persist writes raw (when non-nil) and then cred. If the credential
// cannot be written the envelope is put back to prev so the old password
// keeps working.
func (s *Session) persist(ctx context.Context, raw, prev []byte, cred *Credential) error {
	if raw != nil {
		if err := s.backend.Save(ctx, raw); err != nil {
			return storageErr("save envelope", err)
		}
	}
	if err := s.creds.SaveCredential(ctx, cred); err != nil {
		if raw != nil && prev != nil {
			if rerr := s.backend.Save(context.WithoutCancel(ctx), prev); rerr != nil {
				s.log.Error().Err(rerr).Msg("failed to restore previous envelope")
			}
		}
		return storageErr("save credential", err)
	}
	return nil
}

// ChangePassword re-encrypts the vault under a key derived from
// newPassword. On any failure the old password and the stored vault stay
// valid.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrEmptyPassword)
	}
	if err := s.writes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.writes.Release(1)

	s.mu.RLock()
	gen, doc, pending, cred := s.gen, s.doc, slices.Clone(s.pending), s.cred
	current, err := s.sessionKey()
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	defer current.Wipe()

	if err := s.verifyCurrent(ctx, oldPassword, cred, current); err != nil {
		return err
	}

	key, err := s.newKey(ctx, newPassword)
	if err != nil {
		return err
	}
	defer key.Wipe()

	raw, merged, err := s.codec.Encode(doc, key, pending...)
	if err != nil {
		s.logMergeConflict(err, "change password")
		return err
	}
	prev, err := s.backend.Load(ctx)
	if err != nil && !isNotFound(err) {
		return storageErr("load envelope", err)
	}

	now := s.codec.stamp()
	created := now
	if cred != nil {
		created = cred.CreatedAt
	}
	newCred := newCredential(key, created, now)
	if err := s.persist(ctx, raw, prev, newCred); err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.secrets.Put(sessionKeyName, key.material)
		s.keyParams = key.Params
		s.keyParams.Salt = bytes.Clone(key.Params.Salt)
		s.doc = merged
		s.pending = s.pending[len(pending):]
		s.cred = newCred
	}
	s.mu.Unlock()

	s.log.Info().Msg("vault password changed")
	return nil
}

// verifyCurrent checks password against the credential record, or, when
// there is no usable record, against the working key itself.
func (s *Session) verifyCurrent(ctx context.Context, password []byte, cred *Credential, current *Key) error {
	if cred != nil {
		ok, err := Verify(ctx, password, cred)
		if err == nil {
			if !ok {
				return ErrInvalidCredentials
			}
			return nil
		}
		if !errors.Is(err, ErrMalformedCredential) {
			return err
		}
		s.log.Warn().Err(err).Msg("credential record unusable, checking against session key")
	}
	if len(password) == 0 {
		return ErrInvalidCredentials
	}
	k, err := DeriveKey(ctx, password, current.Params)
	if err != nil {
		return err
	}
	defer k.Wipe()
	if subtle.ConstantTimeCompare(k.material, current.material) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// Logout forgets the key, the document and anything staged. It does not
// save; flush and Save first to keep pending edits.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.state == StateLoggedOut {
		s.mu.Unlock()
		return
	}
	s.secrets.Wipe(sessionKeyName)
	zero(s.keyParams.Salt)
	s.keyParams = KDFParams{}
	s.doc = Document{}
	s.pending = nil
	s.cred = nil
	s.state = StateLoggedOut
	s.gen++
	s.mu.Unlock()

	s.log.Info().Msg("vault locked")
	s.events.logout()
}

// write runs one serialized read-modify-write of the stored vault: the
// current document plus everything staged, then mutate, then encode and
// save. The result is adopted only if the session was not logged out or
// replaced meanwhile.
func (s *Session) write(ctx context.Context, op string, mutate func(Document) (Document, error)) error {
	if err := s.writes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.writes.Release(1)

	s.mu.RLock()
	gen, doc, pending := s.gen, s.doc, slices.Clone(s.pending)
	key, err := s.sessionKey()
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	defer key.Wipe()

	next, err := mergeAll(doc, pending)
	if err == nil && mutate != nil {
		next, err = mutate(next)
	}
	if err != nil {
		s.logMergeConflict(err, op)
		return err
	}

	raw, saved, err := s.codec.Encode(next, key)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := s.backend.Save(ctx, raw); err != nil {
		return storageErr("save envelope", err)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.doc = saved
		s.pending = s.pending[len(pending):]
	}
	s.mu.Unlock()

	s.log.Debug().Str("op", op).Int("bytes", len(raw)).Dur("took", time.Since(start)).Msg("vault saved")
	return nil
}

func (s *Session) logMergeConflict(err error, op string) {
	if errors.Is(err, ErrMergeConflict) {
		s.log.Error().Err(err).Str("op", op).Msg("merge conflict")
	}
}

// SaveItem stores item in collection c under id, or under a new id when id
// is empty, and persists the vault. It returns the item as stored.
func (s *Session) SaveItem(ctx context.Context, c Collection, id string, item Item) (Item, error) {
	if !c.Valid() {
		err := fmt.Errorf("%w: unknown collection %q", ErrMergeConflict, c)
		s.logMergeConflict(err, "save item")
		return nil, err
	}
	if item == nil || item.Collection() != c {
		err := fmt.Errorf("%w: %T does not belong in %s", ErrMergeConflict, item, c)
		s.logMergeConflict(err, "save item")
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	var saved Item
	err := s.write(ctx, "save item", func(d Document) (Document, error) {
		prev, ok := d.Get(c, id)
		if !ok {
			prev = nil
		}
		saved = stampItem(item, id, s.codec.stamp(), prev)
		return MergePartial(d, PartialOf(saved))
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("collection", string(c)).Str("id", id).Msg("item saved")
	s.events.saveComplete(c)
	return cloneItem(saved), nil
}

// stampItem sets id, timestamps and size. An overwrite keeps the stored
// creation time; a new item keeps a caller supplied one.
func stampItem(it Item, id string, now time.Time, prev Item) Item {
	created := func(given time.Time) time.Time {
		switch p := prev.(type) {
		case Doc:
			return p.CreatedAt
		case Photo:
			return p.CreatedAt
		case File:
			return p.CreatedAt
		}
		if given.IsZero() {
			return now
		}
		return given
	}
	switch v := it.(type) {
	case Doc:
		v.ID, v.UpdatedAt = id, now
		v.CreatedAt = created(v.CreatedAt)
		return v
	case Photo:
		v = clonePhoto(v)
		v.ID, v.UpdatedAt, v.Size = id, now, int64(len(v.Data))
		v.CreatedAt = created(v.CreatedAt)
		return v
	case File:
		v = cloneFile(v)
		v.ID, v.UpdatedAt, v.Size = id, now, int64(len(v.Data))
		v.CreatedAt = created(v.CreatedAt)
		return v
	}
	return it
}

func (s *Session) DeleteItem(ctx context.Context, c Collection, id string) error {
	err := s.write(ctx, "delete item", func(d Document) (Document, error) {
		return d.Delete(c, id)
	})
	if err != nil {
		return err
	}
	s.log.Debug().Str("collection", string(c)).Str("id", id).Msg("item deleted")
	s.events.saveComplete(c)
	return nil
}

// Stage buffers a partial update from a feature module. It is visible to
// reads immediately and persisted by the next write.
func (s *Session) Stage(p Partial) error {
	if _, err := MergePartial(Document{}, p); err != nil {
		s.logMergeConflict(err, "stage")
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoggedIn {
		return ErrLocked
	}
	s.pending = append(s.pending, p.clone())
	return nil
}

// Dirty reports whether staged updates are waiting to be saved.
func (s *Session) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending) > 0
}

// Save persists staged updates. It is a no-op when nothing is staged.
func (s *Session) Save(ctx context.Context) error {
	s.mu.RLock()
	if s.state != StateLoggedIn {
		s.mu.RUnlock()
		return ErrLocked
	}
	touched := map[Collection]bool{}
	for _, p := range s.pending {
		for c := range p {
			touched[c] = true
		}
	}
	s.mu.RUnlock()
	if len(touched) == 0 {
		return nil
	}

	if err := s.write(ctx, "save", nil); err != nil {
		return err
	}
	for _, c := range Collections() {
		if touched[c] {
			s.events.saveComplete(c)
		}
	}
	return nil
}

// view is the document as readers see it: stored state plus staged
// updates, deep copied.
func (s *Session) view() (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateLoggedIn {
		return Document{}, ErrLocked
	}
	d := s.doc.Clone()
	for _, p := range s.pending {
		var err error
		if d, err = MergePartial(d, p); err != nil {
			return Document{}, err
		}
	}
	return d, nil
}

func (s *Session) Collection(c Collection) (map[string]Item, error) {
	d, err := s.view()
	if err != nil {
		return nil, err
	}
	return d.Collection(c)
}

func (s *Session) Item(c Collection, id string) (Item, error) {
	d, err := s.view()
	if err != nil {
		return nil, err
	}
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown collection %q", ErrMergeConflict, c)
	}
	it, ok := d.Get(c, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrItemNotFound, c, id)
	}
	return it, nil
}

func (s *Session) Docs() (map[string]Doc, error) {
	d, err := s.view()
	return d.Docs, err
}

func (s *Session) Photos() (map[string]Photo, error) {
	d, err := s.view()
	return d.Photos, err
}

func (s *Session) Files() (map[string]File, error) {
	d, err := s.view()
	return d.Files, err
}

// Document returns a deep copy of the whole vault as readers see it.
func (s *Session) Document() (Document, error) {
	return s.view()
}

// ExportVault flushes feature modules, encodes the vault and hands the
// envelope to the file picker. It returns where the file was written.
func (s *Session) ExportVault(ctx context.Context, name string) (string, error) {
	if s.files == nil {
		return "", ErrNoFilePicker
	}
	if !s.IsUnlocked() {
		return "", ErrLocked
	}
	_ = s.FlushAll(ctx)

	if err := s.writes.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.writes.Release(1)

	s.mu.RLock()
	doc, pending := s.doc, slices.Clone(s.pending)
	key, err := s.sessionKey()
	s.mu.RUnlock()
	if err != nil {
		return "", err
	}
	defer key.Wipe()

	raw, _, err := s.codec.Encode(doc, key, pending...)
	if err != nil {
		s.logMergeConflict(err, "export")
		return "", err
	}
	name = exportName(name, s.codec.stamp())
	loc, err := s.files.SaveAs(ctx, name, raw)
	if err != nil {
		return "", storageErr("export", err)
	}
	s.log.Info().Str("location", loc).Int("bytes", len(raw)).Msg("vault exported")
	return loc, nil
}

func exportName(name string, now time.Time) string {
	if name == "" {
		return "vault-" + now.Format("2006-01-02-150405") + FileExtension
	}
	if filepath.Ext(name) == "" {
		return name + FileExtension
	}
	return name
}

// ImportVault opens an exported vault file with password and makes it the
// session's vault, replacing whatever was unlocked before. With a file
// backed store the imported file becomes the active file; otherwise its
// content is copied into the backend. On failure the session is unchanged.
func (s *Session) ImportVault(ctx context.Context, name string, password []byte) error {
	if s.files == nil {
		return ErrNoFilePicker
	}
	if err := s.writes.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.writes.Release(1)

	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	raw, loc, err := s.files.Open(ctx, name)
	if err != nil {
		return storageErr("open import", err)
	}
	dec, err := s.decode(ctx, raw, password, nil)
	if err != nil {
		return err
	}
	key, doc := dec.Key, dec.Document
	defer func() { key.Wipe() }()

	var write []byte
	if !dec.Current() {
		migrated, err := s.newKey(ctx, password)
		if err != nil {
			return err
		}
		key.Wipe()
		key = migrated
		if write, doc, err = s.codec.Encode(doc, key); err != nil {
			return err
		}
	}

	now := s.codec.stamp()
	cred := newCredential(key, now, now)
	if af, ok := s.backend.(ActiveFile); ok {
		prevPath, hadPrev := af.ActiveFile()
		if err := af.SetActiveFile(loc); err != nil {
			return storageErr("set active file", err)
		}
		if err := s.persist(ctx, write, raw, cred); err != nil {
			if !hadPrev {
				af.ClearActiveFile()
			} else if rerr := af.SetActiveFile(prevPath); rerr != nil {
				s.log.Error().Err(rerr).Msg("failed to restore active file")
			}
			return err
		}
	} else {
		if write == nil {
			write = raw
		}
		prev, err := s.backend.Load(ctx)
		if err != nil && !isNotFound(err) {
			return storageErr("load envelope", err)
		}
		if err := s.persist(ctx, write, prev, cred); err != nil {
			return err
		}
	}

	if err := s.adopt(gen, doc, key, cred); err != nil {
		return err
	}
	s.log.Info().Str("location", loc).Str("strategy", dec.Strategy).Msg("vault imported")
	s.events.login()
	return nil
}
