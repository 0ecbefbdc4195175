// Package policy builds the evaluation-only transaction payload presented
// to the threshold key servers as proof of on-chain eligibility.
//
// The payload describes a call to the access-approval entry point of the
// subscription contract with four positional arguments in fixed order: the
// candidate identifier bytes, the subscription object, the service object
// and the shared clock object. It is never submitted to the ledger; the key
// servers dry-run it against current chain state.
package policy

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sealfeed/sealfeed/pkg/identity"
)

// ClockObjectID is the well-known shared clock object every access check
// reads the current time from.
const ClockObjectID = "0x6"

const (
	approveModule   = "subscription"
	approveFunction = "seal_approve"

	ctxApproveV1 = "CTX_SEAL_APPROVE_V1"
	proofVersion = 1

	argKindPure   = 0x00
	argKindObject = 0x01
)

// ObjectRef is an on-chain object reference.
type ObjectRef string

// AccessProof is the inert, canonically serialized call description.
// Build once per decryption attempt; it embeds the candidate identifier,
// so a new strategy needs a new proof.
type AccessProof struct {
	packageID    string
	id           identity.Identifier
	subscription ObjectRef
	service      ObjectRef
	clock        ObjectRef
	raw          []byte
}

// ProofParams carries the inputs to BuildProof.
type ProofParams struct {
	PackageID       string
	ID              identity.Identifier
	SubscriptionRef ObjectRef
	ServiceRef      ObjectRef
	ClockRef        ObjectRef
}

// BuildProof validates the parameters and serializes the approval call.
// All four references must be present; a caller without a subscription must
// short-circuit before ever reaching this builder.
func BuildProof(p ProofParams) (*AccessProof, error) {
	if p.PackageID == "" {
		return nil, errors.New("policy: package id must not be empty")
	}
	if p.ID == "" {
		return nil, errors.New("policy: identifier must not be empty")
	}
	if p.SubscriptionRef == "" {
		return nil, errors.New("policy: subscription reference must not be empty")
	}
	if p.ServiceRef == "" {
		return nil, errors.New("policy: service reference must not be empty")
	}
	if p.ClockRef == "" {
		return nil, errors.New("policy: clock reference must not be empty")
	}

	idBytes, err := p.ID.Bytes()
	if err != nil {
		return nil, fmt.Errorf("policy: decode identifier: %w", err)
	}

	proof := &AccessProof{
		packageID:    p.PackageID,
		id:           p.ID,
		subscription: p.SubscriptionRef,
		service:      p.ServiceRef,
		clock:        p.ClockRef,
	}
	proof.raw = serializeProof(proof, idBytes)
	return proof, nil
}

// serializeProof encodes a proof into its canonical wire form:
// ctx || version(1) || lp(packageID) || lp(module) || lp(function) ||
// argCount(1) || tag(1)+lp(idBytes) || tag(1)+lp(subscription) ||
// tag(1)+lp(service) || tag(1)+lp(clock), where lp is a 4-byte BE length
// prefix. The encoding has exactly one representation per input, which is
// what lets key servers compare proofs byte for byte.
func serializeProof(p *AccessProof, idBytes []byte) []byte {
	var buf []byte
	buf = append(buf, ctxApproveV1...)
	buf = append(buf, proofVersion)
	buf = appendSized(buf, []byte(p.packageID))
	buf = appendSized(buf, []byte(approveModule))
	buf = appendSized(buf, []byte(approveFunction))
	buf = append(buf, 4) // argument count

	buf = append(buf, argKindPure)
	buf = appendSized(buf, idBytes)
	buf = append(buf, argKindObject)
	buf = appendSized(buf, []byte(p.subscription))
	buf = append(buf, argKindObject)
	buf = appendSized(buf, []byte(p.service))
	buf = append(buf, argKindObject)
	buf = appendSized(buf, []byte(p.clock))
	return buf
}

func appendSized(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

// Bytes returns the canonical wire form. The slice is shared; callers must
// not mutate it.
func (p *AccessProof) Bytes() []byte { return p.raw }

// Identifier returns the candidate identifier the proof was built for.
func (p *AccessProof) Identifier() identity.Identifier { return p.id }

// Target returns the fully qualified entry point, e.g.
// "0xpkg::subscription::seal_approve".
func (p *AccessProof) Target() string {
	return p.packageID + "::" + approveModule + "::" + approveFunction
}

// Subscription returns the subscription object reference.
func (p *AccessProof) Subscription() ObjectRef { return p.subscription }

// Service returns the service object reference.
func (p *AccessProof) Service() ObjectRef { return p.service }

// Clock returns the clock object reference.
func (p *AccessProof) Clock() ObjectRef { return p.clock }
