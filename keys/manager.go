package keys

import (
	"cmp"
	"context"
	"crypto"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/edgefirst-dev/jwt/storage"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

const (
	defaultMaxAttempts = 2
	defaultLockTTL     = 10 * time.Second
)

// Hooks receive lifecycle notifications. Nil fields are skipped.
type Hooks struct {
	OnScan           func(p Purpose, records int, elapsed time.Duration)
	OnGenerate       func(ctx context.Context, p Purpose, pair KeyPair)
	OnRotate         func(ctx context.Context, p Purpose, superseded []string, next KeyPair)
	OnLockContention func(p Purpose)
	OnRace           func(p Purpose)
}

// Manager discovers, generates, and rotates key pairs stored in a storage.Adapter.
//
// A Manager holds no key material between calls and is safe for concurrent use when the
// adapter is.
type Manager struct {
	store       storage.Adapter
	provider    Provider
	codec       *Codec
	namespace   string
	pageSize    int
	maxAttempts int
	serialize   bool
	lockTTL     time.Duration
	logger      logr.Logger
	hooks       Hooks
	now         func() time.Time
	newID       func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithProvider replaces the default ECProvider.
func WithProvider(p Provider) Option {
	return func(m *Manager) {
		if p != nil {
			m.provider = p
		}
	}
}

// WithNamespace prefixes every storage key with ns + ":".
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = strings.TrimSuffix(ns, ":") }
}

// WithPageSize sets the listing page size used while scanning.
func WithPageSize(n int) Option {
	return func(m *Manager) { m.pageSize = n }
}

// WithMaxAttempts bounds how many scans KeysFor runs before giving up with
// ErrKeyGenerationRace. Values below 2 are raised to 2.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) { m.maxAttempts = max(n, defaultMaxAttempts) }
}

// WithSerializedGeneration toggles locking around generation when the adapter
// implements storage.Locker. It is on by default.
func WithSerializedGeneration(enabled bool, ttl time.Duration) Option {
	return func(m *Manager) {
		m.serialize = enabled
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(l logr.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides the random UUID key id source.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager returns a Manager persisting to store.
func NewManager(store storage.Adapter, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		provider:    ECProvider{},
		pageSize:    DefaultPageSize,
		maxAttempts: defaultMaxAttempts,
		serialize:   true,
		lockTTL:     defaultLockTTL,
		logger:      logr.Discard(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.codec = NewCodec(m.provider)
	return m
}

// Codec exposes the record codec the Manager uses.
func (m *Manager) Codec() *Codec {
	return m.codec
}

func (m *Manager) prefix(p Purpose) string {
	if m.namespace == "" {
		return p.Prefix + ":"
	}
	return m.namespace + ":" + p.Prefix + ":"
}

func (m *Manager) recordKey(p Purpose, id string) string {
	return m.prefix(p) + id
}

// The lock key sits beside the purpose prefix, not under it, so scans never list it.
func (m *Manager) lockKey(p Purpose) string {
	return strings.TrimSuffix(m.prefix(p), ":") + ".lock"
}

// KeysFor returns every key pair stored for p, newest first, generating and persisting
// a new pair when none is valid for p.Algorithm. The result always holds at least one
// valid pair of that algorithm on success; pairs of other algorithms are returned too so
// tokens they signed keep verifying.
func (m *Manager) KeysFor(ctx context.Context, p Purpose) ([]KeyPair, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		pairs, err := m.Load(ctx, p)
		if err != nil {
			return nil, err
		}
		if countUsable(pairs, p.Algorithm) > 0 {
			return pairs, nil
		}
		if attempt >= m.maxAttempts {
			break
		}
		if err := m.ensureValid(ctx, p); err != nil {
			return nil, err
		}
	}

	if m.hooks.OnRace != nil {
		m.hooks.OnRace(p)
	}
	m.logger.Error(ErrKeyGenerationRace, "generated key not visible in storage", "purpose", p.Name, "attempts", m.maxAttempts)
	return nil, fmt.Errorf("%w: purpose %s after %d scans", ErrKeyGenerationRace, p.Name, m.maxAttempts)
}

// Load scans and decodes every stored pair for p without generating anything.
// Pairs are ordered by creation time descending, ties by id.
func (m *Manager) Load(ctx context.Context, p Purpose) ([]KeyPair, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	start := m.now()

	var pairs []KeyPair
	for blob, err := range Scan(ctx, m.store, m.prefix(p), m.pageSize) {
		if err != nil {
			return nil, err
		}
		pair, err := m.codec.Decode(blob)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	slices.SortStableFunc(pairs, func(a, b KeyPair) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if m.hooks.OnScan != nil {
		m.hooks.OnScan(p, len(pairs), m.now().Sub(start))
	}
	return pairs, nil
}

// PublicKeys returns KeysFor with private key material stripped.
func (m *Manager) PublicKeys(ctx context.Context, p Purpose) ([]KeyPair, error) {
	pairs, err := m.KeysFor(ctx, p)
	if err != nil {
		return nil, err
	}
	for i := range pairs {
		pairs[i].PrivateKey = nil
	}
	return pairs, nil
}

// Generate creates and persists a new valid pair for p unconditionally.
func (m *Manager) Generate(ctx context.Context, p Purpose) (KeyPair, error) {
	if err := p.validate(); err != nil {
		return KeyPair{}, err
	}

	priv, err := m.provider.Generate(p.Algorithm)
	if err != nil {
		return KeyPair{}, err
	}
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return KeyPair{}, fmt.Errorf("%w: generated key does not expose a public key", ErrUnsupportedAlgorithm)
	}
	pub := signer.Public()
	jwk, err := m.provider.PublicJWK(p.Algorithm, pub)
	if err != nil {
		return KeyPair{}, err
	}

	pair := KeyPair{
		ID:         m.newID(),
		Algorithm:  p.Algorithm,
		Created:    m.now().UTC(),
		PublicKey:  pub,
		PrivateKey: priv,
		PublicJWK:  jwk,
	}
	pair.PublicJWK.KeyID = pair.ID

	if err := m.persist(ctx, p, pair); err != nil {
		return KeyPair{}, err
	}

	m.logger.Info("generated key pair", "purpose", p.Name, "kid", pair.ID, "alg", string(pair.Algorithm))
	if m.hooks.OnGenerate != nil {
		m.hooks.OnGenerate(ctx, p, pair)
	}
	return pair, nil
}

// Rotate stamps every valid pair for p as expired and generates its successor.
// It returns the resulting ordered key set with the new pair first.
func (m *Manager) Rotate(ctx context.Context, p Purpose) ([]KeyPair, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := m.rotate(ctx, p); err != nil {
		return nil, err
	}
	return m.KeysFor(ctx, p)
}

func (m *Manager) rotate(ctx context.Context, p Purpose) error {
	unlock, err := m.lock(ctx, p)
	if err != nil {
		return err
	}
	defer unlock()

	pairs, err := m.Load(ctx, p)
	if err != nil {
		return err
	}

	now := m.now().UTC()
	var superseded []string
	for _, pair := range pairs {
		if !pair.Valid() {
			continue
		}
		pair.Expired = now
		if err := m.persist(ctx, p, pair); err != nil {
			return err
		}
		superseded = append(superseded, pair.ID)
	}

	next, err := m.Generate(ctx, p)
	if err != nil {
		return err
	}
	m.logger.Info("rotated key pairs", "purpose", p.Name, "kid", next.ID, "superseded", len(superseded))
	if m.hooks.OnRotate != nil {
		m.hooks.OnRotate(ctx, p, superseded, next)
	}
	return nil
}

func (m *Manager) ensureValid(ctx context.Context, p Purpose) error {
	unlock, err := m.lock(ctx, p)
	if err != nil {
		return err
	}
	defer unlock()

	if m.locking() {
		pairs, err := m.Load(ctx, p)
		if err != nil {
			return err
		}
		if countUsable(pairs, p.Algorithm) > 0 {
			m.logger.V(1).Info("valid key appeared while waiting for lock", "purpose", p.Name)
			if m.hooks.OnLockContention != nil {
				m.hooks.OnLockContention(p)
			}
			return nil
		}
	}

	_, err = m.Generate(ctx, p)
	return err
}

func (m *Manager) locking() bool {
	if !m.serialize {
		return false
	}
	_, ok := m.store.(storage.Locker)
	return ok
}

func (m *Manager) lock(ctx context.Context, p Purpose) (func(), error) {
	if !m.locking() {
		return func() {}, nil
	}
	locker := m.store.(storage.Locker)
	release, err := locker.Lock(ctx, m.lockKey(p), m.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", ErrStorage, p.Name, err)
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error(err, "release key lock", "purpose", p.Name)
		}
	}, nil
}

func (m *Manager) persist(ctx context.Context, p Purpose, pair KeyPair) error {
	blob, err := m.codec.Encode(pair)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, m.recordKey(p, pair.ID), blob); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrStorage, pair.ID, err)
	}
	return nil
}

func countUsable(pairs []KeyPair, alg Algorithm) int {
	n := 0
	for _, p := range pairs {
		if p.Valid() && p.Algorithm == alg {
			n++
		}
	}
	return n
}

// Newest returns the first valid pair in pairs with algorithm alg.
func Newest(pairs []KeyPair, alg Algorithm) (KeyPair, bool) {
	for _, p := range pairs {
		if p.Valid() && p.Algorithm == alg {
			return p, true
		}
	}
	return KeyPair{}, false
}
