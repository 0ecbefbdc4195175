package policy

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/sealfeed/sealfeed/pkg/identity"
)

// ParseProof decodes a canonical proof payload back into an AccessProof.
// Key-server implementations use this to inspect what they are being asked
// to approve before dry-running the call.
func ParseProof(data []byte) (*AccessProof, error) {
	if !strings.HasPrefix(string(data), ctxApproveV1) {
		return nil, errors.New("policy: payload lacks proof context prefix")
	}
	offset := len(ctxApproveV1)
	if len(data) < offset+1 {
		return nil, errors.New("policy: proof payload too short")
	}
	if data[offset] != proofVersion {
		return nil, fmt.Errorf("policy: unsupported proof version: %d", data[offset])
	}
	offset++

	pkg, offset, err := readSized(data, offset)
	if err != nil {
		return nil, fmt.Errorf("policy: read package id: %w", err)
	}
	module, offset, err := readSized(data, offset)
	if err != nil {
		return nil, fmt.Errorf("policy: read module: %w", err)
	}
	function, offset, err := readSized(data, offset)
	if err != nil {
		return nil, fmt.Errorf("policy: read function: %w", err)
	}
	if string(module) != approveModule || string(function) != approveFunction {
		return nil, fmt.Errorf("policy: unexpected target %s::%s", module, function)
	}

	if len(data) < offset+1 {
		return nil, errors.New("policy: proof payload truncated before argument count")
	}
	if data[offset] != 4 {
		return nil, fmt.Errorf("policy: expected 4 arguments, got %d", data[offset])
	}
	offset++

	idBytes, offset, err := readArg(data, offset, argKindPure)
	if err != nil {
		return nil, fmt.Errorf("policy: read identifier argument: %w", err)
	}
	sub, offset, err := readArg(data, offset, argKindObject)
	if err != nil {
		return nil, fmt.Errorf("policy: read subscription argument: %w", err)
	}
	svc, offset, err := readArg(data, offset, argKindObject)
	if err != nil {
		return nil, fmt.Errorf("policy: read service argument: %w", err)
	}
	clock, offset, err := readArg(data, offset, argKindObject)
	if err != nil {
		return nil, fmt.Errorf("policy: read clock argument: %w", err)
	}
	if offset != len(data) {
		return nil, errors.New("policy: proof payload has trailing bytes")
	}

	proof := &AccessProof{
		packageID:    string(pkg),
		id:           identity.Identifier(hex.EncodeToString(idBytes)),
		subscription: ObjectRef(sub),
		service:      ObjectRef(svc),
		clock:        ObjectRef(clock),
	}
	proof.raw = append([]byte(nil), data...)
	return proof, nil
}

func readArg(data []byte, offset int, wantKind byte) ([]byte, int, error) {
	if len(data) < offset+1 {
		return nil, offset, errors.New("truncated before argument tag")
	}
	if data[offset] != wantKind {
		return nil, offset, fmt.Errorf("argument kind %d, want %d", data[offset], wantKind)
	}
	return readSized(data, offset+1)
}

func readSized(data []byte, offset int) ([]byte, int, error) {
	if len(data) < offset+4 {
		return nil, offset, errors.New("truncated length prefix")
	}
	n := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+n {
		return nil, offset, errors.New("truncated field body")
	}
	return data[offset : offset+n], offset + n, nil
}
