// Package session implements the short-lived capability object that
// authorizes threshold-decryption key retrieval.
//
// A Key binds a wallet address to an application package scope for a few
// minutes. It becomes usable only after the wallet signs its challenge
// message; the signature is single-use for the lifetime of that Key object
// and is never persisted anywhere.
package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is how long a signed session stays usable. Ten minutes is
// long enough for a reading session without leaving a stale capability
// around.
const DefaultTTL = 10 * time.Minute

// ctxSessionV1 domain-separates the challenge message from any other
// payload a wallet might be asked to sign.
const ctxSessionV1 = "CTX_SEALFEED_SESSION_V1"

const challengeVersion = 1

var (
	// ErrUserRejected means the wallet declined to sign or the signing
	// flow errored. Terminal for the current attempt.
	ErrUserRejected = errors.New("session: user rejected signing")

	// ErrAlreadyAuthorized guards the single-use signature rule.
	ErrAlreadyAuthorized = errors.New("session: key already carries a signature")

	// ErrNotAuthorized is returned when a Key without a signature is
	// presented where a signed one is required.
	ErrNotAuthorized = errors.New("session: key carries no signature")

	// ErrExpired is returned when the Key's time window has passed.
	ErrExpired = errors.New("session: key expired")
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// SignFunc obtains a personal-message signature from the wallet. It is
// interactive; the user may take their time or decline outright.
type SignFunc func(ctx context.Context, message []byte) ([]byte, error)

// Key is a time-boxed session capability. Create with New, finalize with
// Authorize, then hand to the encryption gateway. Discard afterwards.
type Key struct {
	address   string
	scope     string
	createdAt time.Time
	ttl       time.Duration
	nonce     [16]byte
	signature []byte
	clock     Clock
}

// New creates an unsigned Key for the given wallet address and package
// scope. A zero ttl selects DefaultTTL; a nil clock selects SystemClock.
func New(address, scope string, ttl time.Duration, clock Clock) (*Key, error) {
	if address == "" {
		return nil, errors.New("session: address must not be empty")
	}
	if scope == "" {
		return nil, errors.New("session: package scope must not be empty")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("session: ttl must not be negative, got %v", ttl)
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = SystemClock()
	}

	k := &Key{
		address:   address,
		scope:     scope,
		createdAt: clock.Now().UTC(),
		ttl:       ttl,
		clock:     clock,
	}
	if _, err := rand.Read(k.nonce[:]); err != nil {
		return nil, fmt.Errorf("session: read nonce: %w", err)
	}
	return k, nil
}

// PersonalMessage returns the canonical challenge bytes the wallet signs:
// ctx || version(1) || len(address)(4) || address || len(scope)(4) || scope
// || createdAt(8, unix-sec BE) || ttl(8, seconds BE) || nonce(16).
func (k *Key) PersonalMessage() []byte {
	buf := make([]byte, 0, len(ctxSessionV1)+1+4+len(k.address)+4+len(k.scope)+8+8+16)
	buf = append(buf, ctxSessionV1...)
	buf = append(buf, challengeVersion)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k.address)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, k.address...)

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k.scope)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, k.scope...)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(k.createdAt.Unix()))
	buf = append(buf, tsBuf[:]...)
	binary.BigEndian.PutUint64(tsBuf[:], uint64(k.ttl/time.Second))
	buf = append(buf, tsBuf[:]...)

	buf = append(buf, k.nonce[:]...)
	return buf
}

// Authorize asks the wallet for a signature over the challenge message and
// attaches it. Any signing failure is surfaced as ErrUserRejected, except
// context cancellation which is passed through untouched.
func (k *Key) Authorize(ctx context.Context, sign SignFunc) error {
	if sign == nil {
		return errors.New("session: sign function must not be nil")
	}
	if k.signature != nil {
		return ErrAlreadyAuthorized
	}

	sig, err := sign(ctx, k.PersonalMessage())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUserRejected, err)
	}
	if len(sig) == 0 {
		return fmt.Errorf("%w: wallet returned an empty signature", ErrUserRejected)
	}
	k.signature = sig
	return nil
}

// Valid reports whether the Key is signed and inside its time window.
// The returned error is ErrNotAuthorized or ErrExpired.
func (k *Key) Valid() error {
	if k.signature == nil {
		return ErrNotAuthorized
	}
	if k.clock.Now().After(k.ExpiresAt()) {
		return ErrExpired
	}
	return nil
}

// Address returns the wallet address the Key is bound to.
func (k *Key) Address() string { return k.address }

// Scope returns the application package scope.
func (k *Key) Scope() string { return k.scope }

// Signed reports whether a signature has been attached.
func (k *Key) Signed() bool { return k.signature != nil }

// Signature returns the attached signature, or nil.
func (k *Key) Signature() []byte { return k.signature }

// ExpiresAt returns the end of the Key's validity window.
func (k *Key) ExpiresAt() time.Time { return k.createdAt.Add(k.ttl) }
