// Package publish runs the creator-side pipeline: derive a content
// identifier under the creator's service scope, encrypt, upload to blob
// storage, and mint the on-chain content record. Progress is journaled so
// an interrupted publish resumes at the first incomplete step.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sealfeed/sealfeed/pkg/content"
	"github.com/sealfeed/sealfeed/pkg/identity"
	"github.com/sealfeed/sealfeed/pkg/ledger"
	"github.com/sealfeed/sealfeed/pkg/seal"
	"github.com/sealfeed/sealfeed/pkg/wallet"
	"github.com/sealfeed/sealfeed/pkg/walrus"
)

// DefaultEpochs is the storage duration for uploaded blobs when the
// request leaves it unset.
const DefaultEpochs = 1

var (
	// ErrEmptyContent means the request carried no payload bytes.
	ErrEmptyContent = errors.New("publish: content payload must not be empty")

	// ErrPreviewFailed wraps a preview rendering failure. The encrypted
	// full blob may already be stored; the journal keeps its reference so
	// a retry does not upload it again.
	ErrPreviewFailed = errors.New("publish: preview rendering failed")
)

// Uploader is the upload half of the storage client.
type Uploader interface {
	Upload(ctx context.Context, data []byte, epochs int, sendObjectTo string) (walrus.BlobRef, error)
}

// Encrypter is the encrypt surface of the encryption gateway.
type Encrypter interface {
	Encrypt(ctx context.Context, req seal.EncryptRequest) ([]byte, error)
}

// ServiceResolver looks up the creator's subscription service, whose
// object reference scopes new content identifiers.
type ServiceResolver interface {
	ServiceForCreator(ctx context.Context, creatorID string) (*content.Service, error)
}

// PreviewRenderer produces the public preview bytes for image content.
// It sees the clear payload; the preview blob is stored unencrypted.
type PreviewRenderer interface {
	Render(data []byte) ([]byte, error)
}

// Request describes one piece of content to publish.
type Request struct {
	// TaskID keys the journal entry. Callers that want resume across
	// restarts must reuse the same TaskID on retry. Empty disables
	// journaling for this request.
	TaskID string

	// CreatorRef is the creator profile object passed to the on-chain
	// call, and the object whose service scopes the identifier.
	CreatorRef string

	Title       string
	Description string
	Kind        content.Kind

	// Data is the clear payload.
	Data []byte

	// Epochs is the storage duration; DefaultEpochs when zero.
	Epochs int

	// SendObjectTo optionally transfers the storage object on upload.
	SendObjectTo string
}

// Result reports where the published content ended up.
type Result struct {
	Identifier identity.Identifier
	FullRef    walrus.BlobRef
	PreviewRef walrus.BlobRef
	Digest     string
}

// Deps are the collaborators of the publish pipeline.
type Deps struct {
	Blobs    Uploader
	Gateway  Encrypter
	Wallet   wallet.Wallet
	Services ServiceResolver
	Preview  PreviewRenderer
	Journal  Journal
}

// Orchestrator runs publish requests.
type Orchestrator struct {
	deps      Deps
	packageID string
	log       *slog.Logger
}

// Option adjusts an Orchestrator.
type Option func(*Orchestrator)

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New creates a publish Orchestrator for the given contract package.
// Preview and Journal may be nil: without a renderer image previews reuse
// the full blob reference, without a journal nothing resumes.
func New(packageID string, deps Deps, opts ...Option) (*Orchestrator, error) {
	if packageID == "" {
		return nil, errors.New("publish: package id must not be empty")
	}
	if deps.Blobs == nil || deps.Gateway == nil || deps.Wallet == nil || deps.Services == nil {
		return nil, errors.New("publish: blobs, gateway, wallet and services are all required")
	}
	if deps.Journal == nil {
		deps.Journal = NewMemJournal()
	}
	o := &Orchestrator{
		deps:      deps,
		packageID: packageID,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Publish runs the pipeline to completion, resuming from the journal when
// the task has prior progress. A task whose on-chain record already exists
// returns the recorded result without touching any collaborator.
func (o *Orchestrator) Publish(ctx context.Context, req Request) (*Result, error) {
	if len(req.Data) == 0 {
		return nil, ErrEmptyContent
	}
	if req.CreatorRef == "" {
		return nil, errors.New("publish: creator reference is required")
	}
	if req.Epochs <= 0 {
		req.Epochs = DefaultEpochs
	}

	state := TaskState{}
	if req.TaskID != "" {
		prior, err := o.deps.Journal.Load(ctx, req.TaskID)
		if err != nil {
			return nil, fmt.Errorf("publish: load journal: %w", err)
		}
		if prior != nil {
			state = *prior
			o.log.Info("resuming publish task",
				"task", req.TaskID, "identifier", state.Identifier,
				"full", state.FullRef, "digest", state.Digest)
		}
	}
	if state.Done() {
		return resultOf(state), nil
	}

	// Identifier derivation. Recorded first so a crash between upload and
	// journal write can at worst orphan one blob, never fork the identity
	// the ciphertext was sealed under.
	if state.Identifier == "" {
		id, err := o.deriveIdentifier(ctx, req.CreatorRef)
		if err != nil {
			return nil, err
		}
		state.Identifier = id
		if err := o.checkpoint(ctx, req.TaskID, state); err != nil {
			return nil, err
		}
	}

	// Encrypt and upload the full payload.
	if state.FullRef == "" {
		encoding := seal.EncodingRaw
		if req.Kind == content.KindArticle {
			encoding = seal.EncodingXZ
		}
		ciphertext, err := o.deps.Gateway.Encrypt(ctx, seal.EncryptRequest{
			Plaintext: req.Data,
			ID:        state.Identifier,
			Scope:     o.packageID,
			Encoding:  encoding,
		})
		if err != nil {
			return nil, fmt.Errorf("publish: encrypt: %w", err)
		}
		ref, err := o.deps.Blobs.Upload(ctx, ciphertext, req.Epochs, req.SendObjectTo)
		if err != nil {
			return nil, fmt.Errorf("publish: upload ciphertext: %w", err)
		}
		state.FullRef = ref
		if err := o.checkpoint(ctx, req.TaskID, state); err != nil {
			return nil, err
		}
	}

	// Clear preview, image content only. A failure here leaves the full
	// blob in storage; the journal keeps its reference for retries.
	if state.PreviewRef == "" {
		ref, err := o.previewRef(ctx, req, state.FullRef)
		if err != nil {
			return nil, err
		}
		state.PreviewRef = ref
		if err := o.checkpoint(ctx, req.TaskID, state); err != nil {
			return nil, err
		}
	}

	// On-chain record.
	res, err := o.deps.Wallet.SignAndExecuteTransaction(ctx, &ledger.MoveCall{
		Target: o.packageID + "::content::create_content",
		Arguments: []ledger.CallArg{
			ledger.ObjectArg(req.CreatorRef),
			ledger.StringArg(req.Title),
			ledger.StringArg(req.Description),
			ledger.StringArg(string(state.FullRef)),
			ledger.StringArg(string(state.PreviewRef)),
			ledger.StringArg(string(req.Kind)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("publish: create content record: %w", err)
	}
	state.Digest = res.Digest
	if err := o.checkpoint(ctx, req.TaskID, state); err != nil {
		return nil, err
	}

	o.log.Info("content published",
		"identifier", state.Identifier, "full", state.FullRef,
		"preview", state.PreviewRef, "digest", state.Digest)
	return resultOf(state), nil
}

// deriveIdentifier scopes a fresh identifier under the creator's service
// reference. A creator without a service falls back to the default prefix;
// such content stays decryptable through the verbatim-identifier strategy
// but loses service-scoped access control, so the fallback is logged.
func (o *Orchestrator) deriveIdentifier(ctx context.Context, creatorRef string) (identity.Identifier, error) {
	prefix := identity.DefaultPrefix
	svc, err := o.deps.Services.ServiceForCreator(ctx, creatorRef)
	switch {
	case err == nil:
		prefix, err = identity.Normalize(svc.ID).Bytes()
		if err != nil {
			return "", fmt.Errorf("publish: malformed service reference %q: %w", svc.ID, err)
		}
	case errors.Is(err, content.ErrNoService):
		o.log.Warn("creator has no service, deriving under default prefix",
			"creator", creatorRef)
	default:
		return "", fmt.Errorf("publish: resolve service: %w", err)
	}

	id, err := identity.Derive(prefix, identity.NonceLen)
	if err != nil {
		return "", fmt.Errorf("publish: derive identifier: %w", err)
	}
	return id, nil
}

func (o *Orchestrator) previewRef(ctx context.Context, req Request, fullRef walrus.BlobRef) (walrus.BlobRef, error) {
	if req.Kind != content.KindImage || o.deps.Preview == nil {
		// Articles carry no clear preview; the record points the preview
		// slot at the encrypted blob, matching the reader's expectation
		// that only subscribers see anything.
		return fullRef, nil
	}
	rendered, err := o.deps.Preview.Render(req.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPreviewFailed, err)
	}
	ref, err := o.deps.Blobs.Upload(ctx, rendered, req.Epochs, req.SendObjectTo)
	if err != nil {
		return "", fmt.Errorf("publish: upload preview: %w", err)
	}
	return ref, nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, taskID string, state TaskState) error {
	if taskID == "" {
		return nil
	}
	if err := o.deps.Journal.Save(ctx, taskID, state); err != nil {
		return fmt.Errorf("publish: journal checkpoint: %w", err)
	}
	return nil
}

func resultOf(state TaskState) *Result {
	return &Result{
		Identifier: state.Identifier,
		FullRef:    state.FullRef,
		PreviewRef: state.PreviewRef,
		Digest:     state.Digest,
	}
}
