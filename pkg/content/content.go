// Package content carries the domain model of the subscription system as
// read off the chain: creators publish content records, each gated by the
// creator's service, which subscribers hold time-boxed subscriptions to.
package content

import (
	"errors"
	"fmt"

	"github.com/sealfeed/sealfeed/pkg/ledger"
	"github.com/sealfeed/sealfeed/pkg/walrus"
)

// Kind tags what a content record holds.
type Kind string

const (
	KindImage   Kind = "image"
	KindArticle Kind = "article"
)

// Record is an on-chain content object: metadata plus the storage
// references of the encrypted full blob and the clear preview blob.
type Record struct {
	ID               string
	CreatorID        string
	CreatorAddr      string
	ServiceID        string
	Title            string
	Description      string
	WalrusReference  walrus.BlobRef
	PreviewReference walrus.BlobRef
	Kind             Kind
	CreatedAt        uint64
}

// Service is a creator's subscription offering.
type Service struct {
	ID         string
	CreatorID  string
	Fee        uint64
	DurationMs uint64
}

// Subscription proves a subscriber paid for access to a Service. The
// validity window is enforced on chain; it is carried here for display
// only.
type Subscription struct {
	ID         string
	ServiceID  string
	Subscriber string
	CreatedAt  uint64
}

// Creator is a creator profile object.
type Creator struct {
	ID                string
	Address           string
	Name              string
	Description       string
	SubscriptionPrice uint64
	AvatarURL         string
	CoverURL          string
}

// RecordFromObject projects a ledger object into a Record.
func RecordFromObject(o *ledger.Object) (*Record, error) {
	if o == nil {
		return nil, errors.New("content: nil object")
	}
	ref := o.FieldString("walrus_reference")
	if ref == "" {
		return nil, fmt.Errorf("content: object %s carries no storage reference", o.ID)
	}
	return &Record{
		ID:               o.ID,
		CreatorID:        o.FieldString("creator_id"),
		CreatorAddr:      o.FieldString("creator_addr"),
		ServiceID:        o.FieldString("service_id"),
		Title:            o.FieldString("title"),
		Description:      o.FieldString("description"),
		WalrusReference:  walrus.BlobRef(ref),
		PreviewReference: walrus.BlobRef(o.FieldString("preview_reference")),
		Kind:             Kind(o.FieldString("content_type")),
		CreatedAt:        o.FieldUint64("created_at"),
	}, nil
}
