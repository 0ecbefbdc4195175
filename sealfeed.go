// Package sealfeed is a client library for a subscription-gated content
// feed: creators encrypt content against their on-chain service, store it
// in walrus blob storage, and mint a content record; subscribers prove
// their subscription to a key-server network and decrypt locally.
package sealfeed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sealfeed/sealfeed/pkg/access"
	"github.com/sealfeed/sealfeed/pkg/content"
	"github.com/sealfeed/sealfeed/pkg/ledger"
	"github.com/sealfeed/sealfeed/pkg/publish"
	"github.com/sealfeed/sealfeed/pkg/seal"
	"github.com/sealfeed/sealfeed/pkg/session"
	"github.com/sealfeed/sealfeed/pkg/wallet"
	"github.com/sealfeed/sealfeed/pkg/walrus"
)

var (
	// ErrNoCreatorProfile means the connected wallet has no creator
	// object, so it cannot publish.
	ErrNoCreatorProfile = errors.New("sealfeed: wallet has no creator profile")
)

// Dependencies are the external collaborators a Client needs. Wallet,
// Ledger and Keys are required; Journal and Preview are optional.
type Dependencies struct {
	// Wallet signs session messages and transactions. The Client
	// serializes access to it; callers should pass the raw wallet.
	Wallet wallet.Wallet

	// Ledger reads chain state.
	Ledger ledger.Client

	// Keys talks to the key-server network.
	Keys seal.KeyService

	// Journal persists publish progress. Nil keeps progress in memory
	// only.
	Journal publish.Journal

	// Preview renders image previews. Nil publishes images without a
	// clear preview.
	Preview publish.PreviewRenderer
}

// Client is the top-level handle tying the collaborators together.
type Client struct {
	config Config

	wallet   *wallet.Serialized
	blobs    *walrus.Client
	gateway  *seal.Gateway
	resolver *content.Resolver
	access   *access.Orchestrator
	publish  *publish.Orchestrator

	// inflight deduplicates concurrent decrypts of the same content
	// object; a feed UI routinely asks for the same post several times
	// while it renders.
	inflight *xsync.MapOf[string, *decryptCall]
}

type decryptCall struct {
	once      sync.Once
	done      chan struct{}
	plaintext []byte
	err       error
}

// New wires a Client. It performs no I/O.
func New(conf Config, deps Dependencies) (*Client, error) {
	if conf.PackageID == "" {
		return nil, errors.New("sealfeed: package id must not be empty")
	}
	if deps.Wallet == nil || deps.Ledger == nil || deps.Keys == nil {
		return nil, errors.New("sealfeed: wallet, ledger and keys are all required")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	if conf.SessionTTL <= 0 {
		conf.SessionTTL = session.DefaultTTL
	}

	serialized := wallet.NewSerialized(deps.Wallet)

	blobs := walrus.NewClient(conf.PublisherURL, conf.AggregatorURL,
		walrus.WithLogger(conf.Logger))

	gateway, err := seal.NewGateway(deps.Keys, seal.WithLogger(conf.Logger))
	if err != nil {
		return nil, err
	}

	resolver, err := content.NewResolver(deps.Ledger, conf.PackageID, conf.Logger)
	if err != nil {
		return nil, err
	}

	accessOrch, err := access.New(conf.PackageID, access.Deps{
		Blobs:   blobs,
		Gateway: gateway,
		Signer:  serialized,
	}, access.WithSessionTTL(conf.SessionTTL), access.WithLogger(conf.Logger))
	if err != nil {
		return nil, err
	}

	publishOrch, err := publish.New(conf.PackageID, publish.Deps{
		Blobs:    blobs,
		Gateway:  gateway,
		Wallet:   serialized,
		Services: resolver,
		Preview:  deps.Preview,
		Journal:  deps.Journal,
	}, publish.WithLogger(conf.Logger))
	if err != nil {
		return nil, err
	}

	return &Client{
		config:   conf,
		wallet:   serialized,
		blobs:    blobs,
		gateway:  gateway,
		resolver: resolver,
		access:   accessOrch,
		publish:  publishOrch,
		inflight: xsync.NewMapOf[string, *decryptCall](),
	}, nil
}

// Resolver exposes chain-state lookups for callers that render feeds.
func (c *Client) Resolver() *content.Resolver { return c.resolver }

// DecryptContent resolves a content object and runs the decrypt flow.
// Concurrent calls for the same object share one attempt, so the user is
// prompted for at most one session signature per object.
func (c *Client) DecryptContent(ctx context.Context, contentID string) ([]byte, error) {
	call, loaded := c.inflight.LoadOrCompute(contentID, func() *decryptCall {
		return &decryptCall{done: make(chan struct{})}
	})
	if loaded {
		select {
		case <-call.done:
			return call.plaintext, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call.once.Do(func() {
		defer close(call.done)
		defer c.inflight.Delete(contentID)
		call.plaintext, call.err = c.decryptContent(ctx, contentID)
	})
	return call.plaintext, call.err
}

func (c *Client) decryptContent(ctx context.Context, contentID string) ([]byte, error) {
	record, err := c.resolver.Record(ctx, contentID)
	if err != nil {
		return nil, err
	}

	svc, err := c.serviceFor(ctx, record)
	if err != nil {
		return nil, err
	}

	req := access.Request{Record: record, Service: svc}
	sub, err := c.resolver.SubscriptionFor(ctx, c.wallet.Address(), svc.ID)
	switch {
	case err == nil:
		req.Subscription = sub
	case errors.Is(err, content.ErrNoSubscription):
		// Leave it nil; the orchestrator reports SubscriptionRequired
		// without any further calls.
	default:
		return nil, err
	}

	res, err := c.access.Decrypt(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Plaintext, nil
}

func (c *Client) serviceFor(ctx context.Context, record *content.Record) (*content.Service, error) {
	if record.ServiceID != "" {
		return &content.Service{ID: record.ServiceID, CreatorID: record.CreatorID}, nil
	}
	svc, err := c.resolver.ServiceForCreator(ctx, record.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("sealfeed: resolve gating service for %s: %w", record.ID, err)
	}
	return svc, nil
}

// PublishRequest describes content to publish through the Client.
type PublishRequest struct {
	// TaskID keys resume across restarts. Empty publishes without
	// journaling.
	TaskID string

	Title       string
	Description string
	Kind        content.Kind
	Data        []byte
}

// PublishResult reports where published content ended up.
type PublishResult struct {
	ContentDigest string
	FullRef       walrus.BlobRef
	PreviewRef    walrus.BlobRef
}

// Publish encrypts and stores content for the connected wallet's creator
// profile, then mints the on-chain record. Interrupted publishes resume
// when retried with the same TaskID.
func (c *Client) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	creator, err := c.resolver.CreatorByAddress(ctx, c.wallet.Address())
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNoCreatorProfile
		}
		return nil, err
	}

	res, err := c.publish.Publish(ctx, publish.Request{
		TaskID:      req.TaskID,
		CreatorRef:  creator.ID,
		Title:       req.Title,
		Description: req.Description,
		Kind:        req.Kind,
		Data:        req.Data,
		Epochs:      c.config.Epochs,
	})
	if err != nil {
		return nil, err
	}
	return &PublishResult{
		ContentDigest: res.Digest,
		FullRef:       res.FullRef,
		PreviewRef:    res.PreviewRef,
	}, nil
}
