// Package wallet defines the interactive wallet collaborator and the
// serialization gate around it.
//
// Wallet signing is a single-owner, one-at-a-time resource: at most one
// signature request may be in front of the user. Serialized enforces that
// invariant for any underlying implementation.
package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/sealfeed/sealfeed/pkg/ledger"
)

// ErrSignerBusy means another interactive signing request is already
// pending. Callers fail fast rather than queueing prompts.
var ErrSignerBusy = errors.New("wallet: a signing request is already pending")

// ErrNoAccount means no wallet account is connected.
var ErrNoAccount = errors.New("wallet: no account connected")

// TransactionResult is the outcome of a signed-and-executed transaction.
type TransactionResult struct {
	Digest string
}

// Signer is the minimal signing surface the decrypt flow needs.
type Signer interface {
	// Address returns the connected account address, or "" when none.
	Address() string

	// SignPersonalMessage asks the user to sign arbitrary bytes. It is
	// interactive and may be declined.
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}

// Wallet is the full collaborator, adding transaction execution for the
// publish flow's final on-chain step.
type Wallet interface {
	Signer

	// SignAndExecuteTransaction asks the user to sign and submit a call.
	SignAndExecuteTransaction(ctx context.Context, call *ledger.MoveCall) (*TransactionResult, error)
}

// Serialized wraps a Wallet so that only one interactive operation can be
// outstanding. A second concurrent request returns ErrSignerBusy.
type Serialized struct {
	inner Wallet
	mu    sync.Mutex
}

// NewSerialized wraps inner with the one-at-a-time gate.
func NewSerialized(inner Wallet) *Serialized {
	return &Serialized{inner: inner}
}

// Address returns the connected account address.
func (s *Serialized) Address() string { return s.inner.Address() }

// SignPersonalMessage forwards to the inner wallet under the gate.
func (s *Serialized) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	if !s.mu.TryLock() {
		return nil, ErrSignerBusy
	}
	defer s.mu.Unlock()
	return s.inner.SignPersonalMessage(ctx, message)
}

// SignAndExecuteTransaction forwards to the inner wallet under the gate.
func (s *Serialized) SignAndExecuteTransaction(ctx context.Context, call *ledger.MoveCall) (*TransactionResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrSignerBusy
	}
	defer s.mu.Unlock()
	return s.inner.SignAndExecuteTransaction(ctx, call)
}

var _ Wallet = (*Serialized)(nil)
