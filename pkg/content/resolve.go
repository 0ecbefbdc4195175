package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sealfeed/sealfeed/pkg/ledger"
)

// queryEventLimit bounds how many service-creation events one resolution
// scans.
const queryEventLimit = 100

var (
	// ErrNoService means the creator has no service object, so their
	// content was (or will be) scoped under the default prefix.
	ErrNoService = errors.New("content: creator has no service")

	// ErrNoSubscription means the wallet owns no subscription for the
	// service; decryption must not even be attempted.
	ErrNoSubscription = errors.New("content: no subscription for service")
)

// Resolver answers "which service gates this content, and does this wallet
// hold a subscription to it" from chain state. The ledger client is
// injected; nothing here holds ambient global state.
type Resolver struct {
	ledger    ledger.Client
	packageID string
	log       *slog.Logger
}

// NewResolver creates a Resolver bound to a contract package.
func NewResolver(client ledger.Client, packageID string, log *slog.Logger) (*Resolver, error) {
	if client == nil {
		return nil, errors.New("content: ledger client must not be nil")
	}
	if packageID == "" {
		return nil, errors.New("content: package id must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{ledger: client, packageID: packageID, log: log}, nil
}

// Record fetches and projects a content object.
func (r *Resolver) Record(ctx context.Context, objectID string) (*Record, error) {
	obj, err := r.ledger.GetObject(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("content: fetch record %s: %w", objectID, err)
	}
	return RecordFromObject(obj)
}

// ServiceForCreator finds the service owned by a creator by scanning
// service-creation events. Services are shared objects, so ownership
// queries cannot find them; the creation event is the only link.
func (r *Resolver) ServiceForCreator(ctx context.Context, creatorID string) (*Service, error) {
	eventType := r.packageID + "::subscription::ServiceCreatedEvent"
	events, err := r.ledger.QueryEvents(ctx, eventType, queryEventLimit)
	if err != nil {
		return nil, fmt.Errorf("content: query service events: %w", err)
	}
	for i := range events {
		ev := &events[i]
		if ev.ParsedString("creator_id") != creatorID {
			continue
		}
		serviceID := ev.ParsedString("service_id")
		if serviceID == "" {
			continue
		}
		return &Service{ID: serviceID, CreatorID: creatorID}, nil
	}
	return nil, ErrNoService
}

// SubscriptionFor finds a subscription owned by owner for the given
// service. Expiry is not checked here; the chain enforces the window and
// an expired subscription simply fails the on-chain approval.
func (r *Resolver) SubscriptionFor(ctx context.Context, owner, serviceID string) (*Subscription, error) {
	if owner == "" {
		return nil, ErrNoSubscription
	}
	structType := r.packageID + "::subscription::Subscription"
	owned, err := r.ledger.GetOwnedObjects(ctx, owner, structType)
	if err != nil {
		return nil, fmt.Errorf("content: list subscriptions: %w", err)
	}
	for i := range owned {
		obj := &owned[i]
		if obj.FieldString("service_id") != serviceID {
			continue
		}
		return &Subscription{
			ID:         obj.ID,
			ServiceID:  serviceID,
			Subscriber: owner,
			CreatedAt:  obj.FieldUint64("created_at"),
		}, nil
	}
	return nil, ErrNoSubscription
}

// CreatorByAddress finds the creator profile owned by an address.
func (r *Resolver) CreatorByAddress(ctx context.Context, addr string) (*Creator, error) {
	structType := r.packageID + "::creator::Creator"
	owned, err := r.ledger.GetOwnedObjects(ctx, addr, structType)
	if err != nil {
		return nil, fmt.Errorf("content: list creator objects: %w", err)
	}
	if len(owned) == 0 {
		return nil, ledger.ErrNotFound
	}
	obj := &owned[0]
	return &Creator{
		ID:                obj.ID,
		Address:           addr,
		Name:              obj.FieldString("name"),
		Description:       obj.FieldString("description"),
		SubscriptionPrice: obj.FieldUint64("subscription_price"),
		AvatarURL:         obj.FieldString("avatar_url"),
		CoverURL:          obj.FieldString("cover_url"),
	}, nil
}
