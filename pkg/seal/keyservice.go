package seal

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/sealfeed/sealfeed/pkg/identity"
	"github.com/sealfeed/sealfeed/pkg/policy"
	"github.com/sealfeed/sealfeed/pkg/session"
)

// Approver stands in for the on-chain dry run a real key-server network
// performs before releasing keys. It returns nil to approve, or
// ErrAccessDenied (possibly wrapped) to reject.
type Approver func(ctx context.Context, proof *policy.AccessProof, key *session.Key) error

// LocalKeyService is a single-party, in-process KeyService for development
// and tests. It derives content keys from a master secret instead of a
// distributed threshold scheme, but it enforces the same protocol shape:
// no key release without a signed session and a parseable access proof for
// the requested identifier.
type LocalKeyService struct {
	master  []byte
	approve Approver
}

// NewLocalKeyService creates a LocalKeyService over a master secret.
// A nil approver approves everything.
func NewLocalKeyService(master []byte, approve Approver) (*LocalKeyService, error) {
	if len(master) == 0 {
		return nil, errors.New("seal: master secret must not be empty")
	}
	if approve == nil {
		approve = func(context.Context, *policy.AccessProof, *session.Key) error { return nil }
	}
	return &LocalKeyService{
		master:  append([]byte(nil), master...),
		approve: approve,
	}, nil
}

// EncryptionKey derives the content key for (scope, id). Needs no
// authorization, mirroring the public half of an identity-based scheme.
func (s *LocalKeyService) EncryptionKey(ctx context.Context, scope string, id identity.Identifier) ([]byte, error) {
	return s.deriveKey(scope, id)
}

// FetchKeys validates the session and proof, runs the approver, and
// releases the content key for the requested identifier.
func (s *LocalKeyService) FetchKeys(ctx context.Context, req FetchKeysRequest) ([]byte, error) {
	if req.Session == nil {
		return nil, ErrSessionUnauthorized
	}
	if err := req.Session.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnauthorized, err)
	}
	if len(req.IDs) != 1 {
		return nil, fmt.Errorf("seal: expected exactly one identifier, got %d", len(req.IDs))
	}

	proof, err := policy.ParseProof(req.TxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable access proof", ErrAccessDenied)
	}
	if proof.Identifier() != req.IDs[0] {
		return nil, fmt.Errorf("%w: proof covers a different identifier", ErrAccessDenied)
	}
	if err := s.approve(ctx, proof, req.Session); err != nil {
		if errors.Is(err, ErrAccessDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}

	return s.deriveKey(req.Scope, req.IDs[0])
}

func (s *LocalKeyService) deriveKey(scope string, id identity.Identifier) ([]byte, error) {
	idBytes, err := id.Bytes()
	if err != nil {
		return nil, err
	}
	info := make([]byte, 0, len(scope)+1+len(idBytes))
	info = append(info, scope...)
	info = append(info, 0x00)
	info = append(info, idBytes...)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.master, nil, info), key); err != nil {
		return nil, fmt.Errorf("seal: derive content key: %w", err)
	}
	return key, nil
}

var _ KeyService = (*LocalKeyService)(nil)
