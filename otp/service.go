package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/fleetAuth/internal"
	"github.com/MrEthical07/fleetAuth/kv"
)

const (
	// DefaultCodeLength is the number of digits in an issued code.
	DefaultCodeLength = 6
	// DefaultTTL is the lifetime of a challenge.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxAttempts is the wrong-code ceiling per challenge.
	DefaultMaxAttempts = 3
	// DefaultKeyPrefix namespaces challenge records in the store.
	DefaultKeyPrefix = "otp"
)

// Config holds challenge policy. Zero values take the package defaults.
type Config struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	KeyPrefix   string

	// Now and Generate are injectable for tests.
	Now      func() time.Time
	Generate func(digits int) (string, error)
}

// Challenge is the result of Issue. Code is the only copy of the plaintext.
type Challenge struct {
	Code      string
	ExpiresAt time.Time
	Channel   Channel
}

// Service issues and verifies challenges against a [kv.Store].
type Service struct {
	store kv.Store
	cfg   Config
}

// NewService validates cfg, fills defaults and returns a Service.
func NewService(store kv.Store, cfg Config) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if cfg.CodeLength == 0 {
		cfg.CodeLength = DefaultCodeLength
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Generate == nil {
		cfg.Generate = internal.NewOTP
	}

	if cfg.CodeLength < 4 || cfg.CodeLength > 10 {
		return nil, fmt.Errorf("%w: code length must be in [4,10]", ErrInvalidConfig)
	}
	if cfg.TTL < time.Second || cfg.TTL > time.Hour {
		return nil, fmt.Errorf("%w: ttl must be in [1s,1h]", ErrInvalidConfig)
	}
	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 65535 {
		return nil, fmt.Errorf("%w: max attempts must be in [1,65535]", ErrInvalidConfig)
	}

	return &Service{store: store, cfg: cfg}, nil
}

// NormalizeIdentifier trims and lower-cases an email or phone identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Key returns the store key of the challenge for identifier.
func (s *Service) Key(identifier string) string {
	return s.cfg.KeyPrefix + ":" + NormalizeIdentifier(identifier)
}

// MaxAttempts returns the configured attempt ceiling.
func (s *Service) MaxAttempts() int {
	return s.cfg.MaxAttempts
}

// Issue generates a fresh code, overwriting any outstanding challenge for
// identifier. Only the SHA-256 of the code is stored.
//
//	Performance: 1 store write.
func (s *Service) Issue(ctx context.Context, identifier string) (Challenge, error) {
	id := NormalizeIdentifier(identifier)
	if id == "" {
		return Challenge{}, ErrInvalidIdentifier
	}

	code, err := s.cfg.Generate(s.cfg.CodeLength)
	if err != nil {
		return Challenge{}, err
	}
	if len(code) != s.cfg.CodeLength || !internal.IsNumeric(code) {
		return Challenge{}, errors.New("otp: generator returned malformed code")
	}

	expiresAt := s.cfg.Now().Add(s.cfg.TTL)
	rec := &record{
		Channel:   ChannelFor(id),
		ExpiresAt: expiresAt.UnixMilli(),
		CodeHash:  internal.HashSecret(code),
	}
	if err := s.store.SetWithTTL(ctx, s.Key(id), encodeRecord(rec), s.cfg.TTL); err != nil {
		return Challenge{}, err
	}

	return Challenge{
		Code:      code,
		ExpiresAt: time.UnixMilli(rec.ExpiresAt),
		Channel:   rec.Channel,
	}, nil
}

// Verify checks candidate against the outstanding challenge.
//
// It returns nil exactly once per issued code. Failure results are
// ErrChallengeNotFound, ErrChallengeExpired, ErrAttemptsExceeded or a
// [*MismatchError]. A mismatch rewrites the record with the lifetime left
// until the original deadline. The wrong attempt that reaches the ceiling
// wipes the code hash and reports ErrAttemptsExceeded; the wiped record
// keeps answering ErrAttemptsExceeded until a new Issue or its deadline.
//
// Every write is conditional on the record read in the same round, so a
// concurrent consume or re-issue is never overwritten. A lost race re-reads
// the record; ErrVerifyContended is returned after maxVerifyRounds losses.
//
//	Performance: 1 read + at most 1 conditional write per round.
func (s *Service) Verify(ctx context.Context, identifier, candidate string) error {
	key := s.Key(identifier)
	provided := internal.HashSecret(strings.TrimSpace(candidate))

	for round := 0; round < maxVerifyRounds; round++ {
		done, err := s.verifyOnce(ctx, key, provided)
		if done {
			return err
		}
	}
	return ErrVerifyContended
}

const maxVerifyRounds = 4

// verifyOnce runs one read-check-write round. done is false when the record
// changed between the read and the conditional write.
func (s *Service) verifyOnce(ctx context.Context, key string, provided [32]byte) (done bool, err error) {
	rec, raw, err := s.load(ctx, key)
	if err != nil {
		return true, err
	}

	now := s.cfg.Now()
	// A challenge is dead at its deadline, not after it, so a rewrite never
	// carries a zero TTL.
	if !now.Before(rec.expiresAt()) {
		_, _ = s.store.CompareAndDelete(ctx, key, raw)
		return true, ErrChallengeExpired
	}
	if int(rec.Attempts) >= s.cfg.MaxAttempts || rec.exhausted() {
		return true, ErrAttemptsExceeded
	}

	if subtle.ConstantTimeCompare(provided[:], rec.CodeHash[:]) == 1 {
		ok, err := s.store.CompareAndDelete(ctx, key, raw)
		if err != nil {
			return true, err
		}
		return ok, nil
	}

	rec.Attempts++
	if int(rec.Attempts) >= s.cfg.MaxAttempts {
		rec.CodeHash = [32]byte{}
	}
	ok, err := s.store.CompareAndSwap(ctx, key, raw, encodeRecord(rec), rec.expiresAt().Sub(now))
	if err != nil {
		return true, err
	}
	if !ok {
		return false, nil
	}
	if rec.exhausted() {
		return true, ErrAttemptsExceeded
	}
	return true, &MismatchError{Remaining: s.cfg.MaxAttempts - int(rec.Attempts)}
}

// Clear deletes the outstanding challenge. Clearing nothing is not an error.
func (s *Service) Clear(ctx context.Context, identifier string) error {
	_, err := s.store.Delete(ctx, s.Key(identifier))
	return err
}

// RemainingAttempts returns how many wrong codes the live challenge still
// tolerates. Missing and expired challenges return the same errors as Verify.
func (s *Service) RemainingAttempts(ctx context.Context, identifier string) (int, error) {
	rec, err := s.live(ctx, identifier)
	if err != nil {
		return 0, err
	}
	left := s.cfg.MaxAttempts - int(rec.Attempts)
	if left < 0 || rec.exhausted() {
		left = 0
	}
	return left, nil
}

// HasValidChallenge reports whether a challenge exists that could still be
// verified successfully.
func (s *Service) HasValidChallenge(ctx context.Context, identifier string) (bool, error) {
	rec, err := s.live(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) || errors.Is(err, ErrChallengeExpired) {
			return false, nil
		}
		return false, err
	}
	return int(rec.Attempts) < s.cfg.MaxAttempts && !rec.exhausted(), nil
}

func (s *Service) live(ctx context.Context, identifier string) (*record, error) {
	key := s.Key(identifier)
	rec, raw, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !s.cfg.Now().Before(rec.expiresAt()) {
		_, _ = s.store.CompareAndDelete(ctx, key, raw)
		return nil, ErrChallengeExpired
	}
	return rec, nil
}

// load reads and decodes a record and also returns the raw bytes for
// conditional writes. Undecodable records are deleted and reported as missing.
func (s *Service) load(ctx context.Context, key string) (*record, []byte, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil, ErrChallengeNotFound
		}
		return nil, nil, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		_, _ = s.store.CompareAndDelete(ctx, key, data)
		return nil, nil, ErrChallengeNotFound
	}
	return rec, data, nil
}
