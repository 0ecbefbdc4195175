package seal

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ulikunitz/xz"

	"github.com/sealfeed/sealfeed/pkg/identity"
	"github.com/sealfeed/sealfeed/pkg/policy"
	"github.com/sealfeed/sealfeed/pkg/session"
)

// DefaultThreshold is the key-server quorum required to release a key.
const DefaultThreshold uint8 = 2

// FetchKeysRequest asks the key-server network to release the content key
// for an identifier, authorized by a signed session and an access proof.
type FetchKeysRequest struct {
	IDs       []identity.Identifier
	Scope     string
	TxBytes   []byte
	Session   *session.Key
	Threshold uint8
}

// KeyService is the threshold key-management collaborator. EncryptionKey
// needs only public material; FetchKeys is the authorized path that the
// key servers gate on the access proof.
//
// Implementations signal a policy rejection with ErrAccessDenied and wrap
// connectivity failures so the gateway can tell the two apart.
type KeyService interface {
	EncryptionKey(ctx context.Context, scope string, id identity.Identifier) ([]byte, error)
	FetchKeys(ctx context.Context, req FetchKeysRequest) ([]byte, error)
}

// EncryptRequest carries the inputs to Gateway.Encrypt.
type EncryptRequest struct {
	Plaintext []byte
	ID        identity.Identifier
	Scope     string
	Threshold uint8
	Encoding  ContentEncoding
}

// DecryptRequest carries the inputs to Gateway.Decrypt.
type DecryptRequest struct {
	Ciphertext []byte
	Session    *session.Key
	Proof      *policy.AccessProof
}

// Gateway performs envelope construction and the local symmetric operation
// around keys managed by a KeyService.
type Gateway struct {
	keys KeyService
	log  *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.log = logger
		}
	}
}

// NewGateway creates a Gateway over the given key service.
func NewGateway(keys KeyService, opts ...GatewayOption) (*Gateway, error) {
	if keys == nil {
		return nil, errors.New("seal: key service must not be nil")
	}
	g := &Gateway{keys: keys, log: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Encrypt seals plaintext under the identifier and scope. The returned
// bytes are a self-describing envelope whose header embeds the identifier
// for later recovery.
func (g *Gateway) Encrypt(ctx context.Context, req EncryptRequest) ([]byte, error) {
	if len(req.Plaintext) == 0 {
		return nil, errors.New("seal: plaintext must not be empty")
	}
	if req.Scope == "" {
		return nil, errors.New("seal: package scope must not be empty")
	}
	if _, err := req.ID.Bytes(); err != nil {
		return nil, err
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	payload := req.Plaintext
	if req.Encoding == EncodingXZ {
		var err error
		payload, err = xzCompress(payload)
		if err != nil {
			return nil, fmt.Errorf("seal: compress plaintext: %w", err)
		}
	}

	key, err := g.keys.EncryptionKey(ctx, req.Scope, req.ID)
	if err != nil {
		return nil, g.mapKeyServiceError(err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	obj := &EncryptedObject{
		Version:   envelopeVersion,
		Scope:     req.Scope,
		ID:        req.ID,
		Threshold: threshold,
		Encoding:  req.Encoding,
		Nonce:     nonce,
	}
	obj.Ciphertext = aead.Seal(nil, nonce[:], payload, envelopeAAD(obj))

	g.log.Debug("content encrypted",
		"id", req.ID, "scope", req.Scope, "encoding", req.Encoding, "bytes", len(req.Plaintext))
	return obj.Marshal(), nil
}

// Decrypt fetches the content key released against the session and proof,
// then opens the envelope locally. The plaintext is returned with any
// content encoding reversed.
func (g *Gateway) Decrypt(ctx context.Context, req DecryptRequest) ([]byte, error) {
	obj, err := ParseEncryptedObject(req.Ciphertext)
	if err != nil {
		return nil, err
	}
	if req.Session == nil {
		return nil, ErrSessionUnauthorized
	}
	if err := req.Session.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnauthorized, err)
	}
	if req.Proof == nil {
		return nil, errors.New("seal: access proof must not be nil")
	}

	candidate := req.Proof.Identifier()
	key, err := g.keys.FetchKeys(ctx, FetchKeysRequest{
		IDs:       []identity.Identifier{candidate},
		Scope:     obj.Scope,
		TxBytes:   req.Proof.Bytes(),
		Session:   req.Session,
		Threshold: obj.Threshold,
	})
	if err != nil {
		return nil, g.mapKeyServiceError(err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	payload, err := aead.Open(nil, obj.Nonce[:], obj.Ciphertext, envelopeAAD(obj))
	if err != nil {
		// A released key that does not open the ciphertext means the
		// candidate identifier was wrong for this object.
		return nil, ErrAccessDenied
	}

	if obj.Encoding == EncodingXZ {
		payload, err = xzDecompress(payload)
		if err != nil {
			return nil, &FormatError{Reason: "xz payload: " + err.Error()}
		}
	}
	return payload, nil
}

// mapKeyServiceError folds collaborator failures into the package taxonomy:
// policy rejections stay ErrAccessDenied, everything else is transport.
func (g *Gateway) mapKeyServiceError(err error) error {
	if errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrSessionUnauthorized) {
		return err
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return err
	}
	return &NetworkError{Err: err}
}

// envelopeAAD binds the envelope header to the ciphertext so a header swap
// is detected at open time.
func envelopeAAD(obj *EncryptedObject) []byte {
	idBytes, _ := obj.ID.Bytes()
	aad := make([]byte, 0, 1+len(obj.Scope)+len(idBytes)+2)
	aad = append(aad, obj.Version)
	aad = append(aad, obj.Scope...)
	aad = append(aad, idBytes...)
	aad = append(aad, obj.Threshold, byte(obj.Encoding))
	return aad
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: content key unusable: %w", err)
	}
	return cipher.NewGCM(block)
}

func xzCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func xzDecompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
