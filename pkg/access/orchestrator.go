// Package access sequences the decrypt flow: fetch the ciphertext, recover
// the embedded identifier, authorize a session, then walk an ordered list
// of identifier-reconstruction strategies until the key servers release a
// key that opens the content.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sealfeed/sealfeed/pkg/content"
	"github.com/sealfeed/sealfeed/pkg/identity"
	"github.com/sealfeed/sealfeed/pkg/policy"
	"github.com/sealfeed/sealfeed/pkg/seal"
	"github.com/sealfeed/sealfeed/pkg/session"
	"github.com/sealfeed/sealfeed/pkg/walrus"
	"github.com/sealfeed/sealfeed/pkg/wallet"
)

// State names a position in the decrypt flow.
type State int

const (
	StateIdle State = iota
	StateFetchingBlob
	StateResolvingIdentity
	StateAuthorizingSession
	StateAttemptingStrategy
	StateDecrypted
	StateFailed
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingBlob:
		return "fetching-blob"
	case StateResolvingIdentity:
		return "resolving-identity"
	case StateAuthorizingSession:
		return "authorizing-session"
	case StateAttemptingStrategy:
		return "attempting-strategy"
	case StateDecrypted:
		return "decrypted"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	// ErrSubscriptionRequired means the wallet holds no subscription for
	// the gating service. Raised before any network call is made.
	ErrSubscriptionRequired = errors.New("access: subscription required")

	// ErrDecryptionExhausted means every identifier strategy was rejected.
	ErrDecryptionExhausted = errors.New("access: all identifier strategies failed")
)

// BlobStore is the download half of the storage client.
type BlobStore interface {
	Download(ctx context.Context, ref walrus.BlobRef) ([]byte, error)
}

// Gateway is the decrypt surface of the encryption gateway.
type Gateway interface {
	Decrypt(ctx context.Context, req seal.DecryptRequest) ([]byte, error)
}

// Request carries the resolved preconditions of one decrypt attempt.
// Resolution happens before the orchestrator runs; a nil Subscription
// short-circuits without touching the network.
type Request struct {
	Record       *content.Record
	Service      *content.Service
	Subscription *content.Subscription
}

// Result is a successful decryption.
type Result struct {
	Plaintext  []byte
	Identifier identity.Identifier
	Strategy   string
}

// Deps are the collaborators of the Orchestrator, injected explicitly so
// tests can substitute fakes.
type Deps struct {
	Blobs   BlobStore
	Gateway Gateway
	Signer  wallet.Signer
}

// Orchestrator runs the decrypt state machine.
type Orchestrator struct {
	deps       Deps
	packageID  string
	strategies []Strategy
	sessionTTL time.Duration
	clock      session.Clock
	log        *slog.Logger
	transition func(State)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStrategies replaces the default strategy list. Order is priority.
func WithStrategies(strategies []Strategy) Option {
	return func(o *Orchestrator) {
		if len(strategies) > 0 {
			o.strategies = strategies
		}
	}
}

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.sessionTTL = ttl
		}
	}
}

// WithClock injects a clock, mainly for tests.
func WithClock(clock session.Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithTransitionHook registers a callback invoked on every state change.
// Used for telemetry and in tests.
func WithTransitionHook(hook func(State)) Option {
	return func(o *Orchestrator) { o.transition = hook }
}

// New creates an Orchestrator for the given contract package.
func New(packageID string, deps Deps, opts ...Option) (*Orchestrator, error) {
	if packageID == "" {
		return nil, errors.New("access: package id must not be empty")
	}
	if deps.Blobs == nil || deps.Gateway == nil || deps.Signer == nil {
		return nil, errors.New("access: blobs, gateway and signer are all required")
	}
	o := &Orchestrator{
		deps:       deps,
		packageID:  packageID,
		strategies: DefaultStrategies(),
		sessionTTL: session.DefaultTTL,
		clock:      session.SystemClock(),
		log:        slog.Default(),
		transition: func(State) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Decrypt runs the flow to completion. The error taxonomy matters more
// than the states: ErrSubscriptionRequired and session.ErrUserRejected are
// terminal and locally meaningful, transport errors abort without burning
// further strategies, and ErrDecryptionExhausted only appears after every
// candidate was rejected. Context cancellation surfaces as ctx.Err().
func (o *Orchestrator) Decrypt(ctx context.Context, req Request) (*Result, error) {
	o.transition(StateIdle)

	if req.Record == nil {
		return nil, errors.New("access: content record is required")
	}
	if req.Service == nil {
		return nil, errors.New("access: service is required")
	}
	if req.Subscription == nil {
		o.fail(req, ErrSubscriptionRequired)
		return nil, ErrSubscriptionRequired
	}
	addr := o.deps.Signer.Address()
	if addr == "" {
		return nil, wallet.ErrNoAccount
	}

	// FetchingBlob
	if err := o.step(ctx, StateFetchingBlob); err != nil {
		return nil, err
	}
	ciphertext, err := o.deps.Blobs.Download(ctx, req.Record.WalrusReference)
	if err != nil {
		o.fail(req, err)
		return nil, fmt.Errorf("access: fetch ciphertext: %w", err)
	}

	// ResolvingIdentity
	if err := o.step(ctx, StateResolvingIdentity); err != nil {
		return nil, err
	}
	original, err := seal.ParseIdentifier(ciphertext)
	if err != nil {
		o.fail(req, err)
		return nil, fmt.Errorf("access: recover embedded identifier: %w", err)
	}

	// AuthorizingSession
	if err := o.step(ctx, StateAuthorizingSession); err != nil {
		return nil, err
	}
	sess, err := session.New(addr, o.packageID, o.sessionTTL, o.clock)
	if err != nil {
		return nil, err
	}
	if err := sess.Authorize(ctx, o.deps.Signer.SignPersonalMessage); err != nil {
		if ctxErr := cancelled(ctx, err); ctxErr != nil {
			o.transition(StateCancelled)
			return nil, ctxErr
		}
		o.fail(req, err)
		return nil, err
	}

	svcCtx := ServiceContext{
		ServiceID: identity.Normalize(req.Service.ID),
		PackageID: o.packageID,
	}

	seen := make(map[identity.Identifier]bool, len(o.strategies))
	for _, strat := range o.strategies {
		if err := o.step(ctx, StateAttemptingStrategy); err != nil {
			return nil, err
		}

		candidate, ok := strat.Rebuild(original, svcCtx)
		if !ok {
			o.log.Debug("strategy not applicable", "strategy", strat.Name, "content", req.Record.ID)
			continue
		}
		if seen[candidate] {
			o.log.Debug("strategy candidate already attempted",
				"strategy", strat.Name, "content", req.Record.ID)
			continue
		}
		seen[candidate] = true

		proof, err := policy.BuildProof(policy.ProofParams{
			PackageID:       o.packageID,
			ID:              candidate,
			SubscriptionRef: policy.ObjectRef(req.Subscription.ID),
			ServiceRef:      policy.ObjectRef(req.Service.ID),
			ClockRef:        policy.ClockObjectID,
		})
		if err != nil {
			o.log.Warn("strategy produced an unusable candidate",
				"strategy", strat.Name, "error", err)
			continue
		}

		plaintext, err := o.deps.Gateway.Decrypt(ctx, seal.DecryptRequest{
			Ciphertext: ciphertext,
			Session:    sess,
			Proof:      proof,
		})
		if err == nil {
			o.transition(StateDecrypted)
			o.log.Info("content decrypted",
				"content", req.Record.ID, "strategy", strat.Name)
			return &Result{Plaintext: plaintext, Identifier: candidate, Strategy: strat.Name}, nil
		}

		if ctxErr := cancelled(ctx, err); ctxErr != nil {
			o.transition(StateCancelled)
			return nil, ctxErr
		}
		if retryable(err) {
			// Wrong identifier guess; the next strategy may still hit.
			var fe *seal.FormatError
			if errors.As(err, &fe) {
				o.log.Warn("strategy hit malformed ciphertext",
					"strategy", strat.Name, "content", req.Record.ID, "error", err)
			} else {
				o.log.Debug("strategy denied",
					"strategy", strat.Name, "content", req.Record.ID)
			}
			continue
		}

		// Transport failure: retrying other candidates would only burn
		// attempts against an unreachable backend.
		o.fail(req, err)
		return nil, fmt.Errorf("access: decrypt attempt aborted: %w", err)
	}

	o.fail(req, ErrDecryptionExhausted)
	return nil, ErrDecryptionExhausted
}

// retryable reports whether an error is a per-candidate rejection rather
// than an environmental failure.
func retryable(err error) bool {
	if errors.Is(err, seal.ErrAccessDenied) {
		return true
	}
	var fe *seal.FormatError
	return errors.As(err, &fe)
}

func cancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (o *Orchestrator) step(ctx context.Context, next State) error {
	if ctx.Err() != nil {
		o.transition(StateCancelled)
		return ctx.Err()
	}
	o.transition(next)
	return nil
}

func (o *Orchestrator) fail(req Request, err error) {
	o.transition(StateFailed)
	contentID := ""
	if req.Record != nil {
		contentID = req.Record.ID
	}
	o.log.Warn("decrypt flow failed", "content", contentID, "error", err)
}
