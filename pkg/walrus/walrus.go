// Package walrus is a thin HTTP client for the decentralized blob storage
// network. Blobs are opaque bytes addressed by an opaque reference string;
// uploads go through a publisher endpoint, downloads through an aggregator.
//
// The client performs no retries. Distinguishing a storage-side rejection
// (StorageError) from plain connectivity loss (TransportError) is the whole
// point of its error surface: callers decide what is worth retrying.
package walrus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

const (
	DefaultPublisherBase  = "https://publisher.walrus-testnet.walrus.space"
	DefaultAggregatorBase = "https://aggregator.walrus-testnet.walrus.space"
)

// BlobRef is a storage-network content handle returned after upload.
type BlobRef string

func (r BlobRef) String() string { return string(r) }

// Client talks to one publisher and one aggregator endpoint.
type Client struct {
	publisherBase  string
	aggregatorBase string
	httpc          *http.Client
	log            *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// NewClient creates a Client for the given endpoints. Empty strings select
// the public testnet defaults.
func NewClient(publisherBase, aggregatorBase string, opts ...Option) *Client {
	if publisherBase == "" {
		publisherBase = DefaultPublisherBase
	}
	if aggregatorBase == "" {
		aggregatorBase = DefaultAggregatorBase
	}
	c := &Client{
		publisherBase:  publisherBase,
		aggregatorBase: aggregatorBase,
		httpc:          http.DefaultClient,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// uploadResponse covers both response shapes the publisher may answer with:
// the blob was stored just now, or an identical blob was already certified.
type uploadResponse struct {
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
}

// Upload PUTs raw bytes to the publisher with a retention epoch count.
// sendObjectTo optionally names the address that should receive the
// storage object created for the blob; empty means the publisher keeps it.
func (c *Client) Upload(ctx context.Context, data []byte, epochs int, sendObjectTo string) (BlobRef, error) {
	q := url.Values{}
	q.Set("epochs", strconv.Itoa(epochs))
	if sendObjectTo != "" {
		q.Set("send_object_to", sendObjectTo)
	}
	endpoint := c.publisherBase + "/v1/blobs?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("walrus: build upload request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &TransportError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "upload", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StorageError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("walrus: decode upload response: %w", err)
	}

	switch {
	case parsed.AlreadyCertified != nil && parsed.AlreadyCertified.BlobID != "":
		c.log.Debug("blob already certified", "blobId", parsed.AlreadyCertified.BlobID)
		return BlobRef(parsed.AlreadyCertified.BlobID), nil
	case parsed.NewlyCreated != nil && parsed.NewlyCreated.BlobObject.BlobID != "":
		c.log.Debug("blob newly created", "blobId", parsed.NewlyCreated.BlobObject.BlobID, "epochs", epochs)
		return BlobRef(parsed.NewlyCreated.BlobObject.BlobID), nil
	default:
		return "", fmt.Errorf("walrus: upload response carries no blob reference: %s", string(body))
	}
}

// Download GETs blob bytes from the aggregator. Caches are bypassed on
// every fetch: a logical slot may have been re-uploaded since the last
// read, and stale ciphertext decrypts to garbage or not at all.
func (c *Client) Download(ctx context.Context, ref BlobRef) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("walrus: empty blob reference")
	}
	endpoint := c.aggregatorBase + "/v1/blobs/" + url.PathEscape(string(ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("walrus: build download request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "download", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "download", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StorageError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
