// Package seal wraps the threshold-encryption layer: it encrypts plaintext
// under a content identifier and package scope, and decrypts ciphertext
// after the key-server network has released the content key against a
// signed session and an on-chain access proof.
//
// The threshold scheme itself lives behind the KeyService interface; this
// package owns the ciphertext envelope and the local symmetric operation.
package seal

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sealfeed/sealfeed/pkg/identity"
)

const envelopeVersion = 1

// gcmNonceSize is the AES-GCM nonce length stored in the envelope.
const gcmNonceSize = 12

// ContentEncoding says how the plaintext was transformed before
// encryption. Decrypt reverses it transparently.
type ContentEncoding byte

const (
	// EncodingRaw leaves plaintext untouched.
	EncodingRaw ContentEncoding = 0
	// EncodingXZ compresses plaintext with xz before encryption. Used
	// for article text, which compresses well and has no preview blob.
	EncodingXZ ContentEncoding = 1
)

// EncryptedObject is the parsed envelope of a ciphertext blob:
// version(1) || len(scope)(4) || scope || len(id)(4) || id(raw bytes) ||
// threshold(1) || encoding(1) || nonce(12) || len(ct)(4) || ct.
//
// The identifier and scope ride in the clear so that a reader can recover
// them without any key material; that recovery is the seed of the
// decryption strategy list.
type EncryptedObject struct {
	Version    byte
	Scope      string
	ID         identity.Identifier
	Threshold  uint8
	Encoding   ContentEncoding
	Nonce      [gcmNonceSize]byte
	Ciphertext []byte
}

// Marshal serializes the envelope into its canonical byte form.
func (e *EncryptedObject) Marshal() []byte {
	idBytes, _ := e.ID.Bytes() // validated at construction

	size := 1 + 4 + len(e.Scope) + 4 + len(idBytes) + 1 + 1 + gcmNonceSize + 4 + len(e.Ciphertext)
	buf := make([]byte, 0, size)
	buf = append(buf, e.Version)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Scope)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, e.Scope...)

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(idBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, idBytes...)

	buf = append(buf, e.Threshold, byte(e.Encoding))
	buf = append(buf, e.Nonce[:]...)

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Ciphertext)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, e.Ciphertext...)
	return buf
}

// ParseEncryptedObject decodes an envelope. Malformed input surfaces as a
// FormatError.
func ParseEncryptedObject(data []byte) (*EncryptedObject, error) {
	if len(data) < 1+4+4+1+1+gcmNonceSize+4 {
		return nil, &FormatError{Reason: "ciphertext shorter than minimal envelope"}
	}
	offset := 0
	version := data[offset]
	offset++
	if version != envelopeVersion {
		return nil, &FormatError{Reason: fmt.Sprintf("unsupported envelope version %d", version)}
	}

	scope, offset, err := readEnvelopeField(data, offset)
	if err != nil {
		return nil, &FormatError{Reason: "scope field: " + err.Error()}
	}
	idBytes, offset, err := readEnvelopeField(data, offset)
	if err != nil {
		return nil, &FormatError{Reason: "identifier field: " + err.Error()}
	}
	if len(idBytes) == 0 {
		return nil, &FormatError{Reason: "empty identifier"}
	}

	if len(data) < offset+1+1+gcmNonceSize {
		return nil, &FormatError{Reason: "envelope truncated before nonce"}
	}
	threshold := data[offset]
	encoding := ContentEncoding(data[offset+1])
	offset += 2
	if encoding != EncodingRaw && encoding != EncodingXZ {
		return nil, &FormatError{Reason: fmt.Sprintf("unknown content encoding %d", encoding)}
	}

	var nonce [gcmNonceSize]byte
	copy(nonce[:], data[offset:offset+gcmNonceSize])
	offset += gcmNonceSize

	ct, offset, err := readEnvelopeField(data, offset)
	if err != nil {
		return nil, &FormatError{Reason: "ciphertext field: " + err.Error()}
	}
	if offset != len(data) {
		return nil, &FormatError{Reason: "envelope has trailing bytes"}
	}

	obj := &EncryptedObject{
		Version:    version,
		Scope:      string(scope),
		ID:         identity.FromParts(idBytes, nil),
		Threshold:  threshold,
		Encoding:   encoding,
		Nonce:      nonce,
		Ciphertext: append([]byte(nil), ct...),
	}
	return obj, nil
}

// ParseIdentifier extracts the identifier embedded in a ciphertext without
// decrypting it. This is how a reader recovers the "original" identifier
// candidate when the authoritative service mapping is ambiguous or stale.
func ParseIdentifier(data []byte) (identity.Identifier, error) {
	obj, err := ParseEncryptedObject(data)
	if err != nil {
		return "", err
	}
	return obj.ID, nil
}

func readEnvelopeField(data []byte, offset int) ([]byte, int, error) {
	if len(data) < offset+4 {
		return nil, offset, errors.New("truncated length prefix")
	}
	n := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+n {
		return nil, offset, errors.New("truncated body")
	}
	return data[offset : offset+n], offset + n, nil
}

func randomNonce() ([gcmNonceSize]byte, error) {
	var nonce [gcmNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("seal: read nonce: %w", err)
	}
	return nonce, nil
}
