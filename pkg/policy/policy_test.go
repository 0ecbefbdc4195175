package policy

import (
	"testing"

	"github.com/sealfeed/sealfeed/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() ProofParams {
	return ProofParams{
		PackageID:       "0xpkg",
		ID:              identity.FromParts([]byte{0x11, 0x22}, []byte{0x01, 0x02, 0x03, 0x04, 0x05}),
		SubscriptionRef: "0xsub",
		ServiceRef:      "0xsvc",
		ClockRef:        ClockObjectID,
	}
}

func TestBuildProofRejectsMissingRefs(t *testing.T) {
	t.Parallel()
	for name, mutate := range map[string]func(*ProofParams){
		"package":      func(p *ProofParams) { p.PackageID = "" },
		"identifier":   func(p *ProofParams) { p.ID = "" },
		"subscription": func(p *ProofParams) { p.SubscriptionRef = "" },
		"service":      func(p *ProofParams) { p.ServiceRef = "" },
		"clock":        func(p *ProofParams) { p.ClockRef = "" },
	} {
		p := validParams()
		mutate(&p)
		_, err := BuildProof(p)
		assert.Error(t, err, "missing %s should be rejected", name)
	}
}

func TestBuildProofRejectsNonHexIdentifier(t *testing.T) {
	t.Parallel()
	p := validParams()
	p.ID = "zz-not-hex"
	_, err := BuildProof(p)
	assert.Error(t, err)
}

func TestBuildProofDeterministic(t *testing.T) {
	t.Parallel()
	a, err := BuildProof(validParams())
	require.NoError(t, err)
	b, err := BuildProof(validParams())
	require.NoError(t, err)

	assert.Equal(t, a.Bytes(), b.Bytes())
	assert.Equal(t, "0xpkg::subscription::seal_approve", a.Target())
}

func TestProofChangesWithIdentifier(t *testing.T) {
	t.Parallel()
	a, err := BuildProof(validParams())
	require.NoError(t, err)

	p := validParams()
	p.ID = identity.FromParts([]byte{0x33, 0x44}, []byte{0x01, 0x02, 0x03, 0x04, 0x05})
	b, err := BuildProof(p)
	require.NoError(t, err)

	assert.NotEqual(t, a.Bytes(), b.Bytes())
}

func TestParseProofRoundTrip(t *testing.T) {
	t.Parallel()
	built, err := BuildProof(validParams())
	require.NoError(t, err)

	parsed, err := ParseProof(built.Bytes())
	require.NoError(t, err)

	assert.Equal(t, built.Identifier(), parsed.Identifier())
	assert.Equal(t, built.Subscription(), parsed.Subscription())
	assert.Equal(t, built.Service(), parsed.Service())
	assert.Equal(t, built.Clock(), parsed.Clock())
	assert.Equal(t, built.Target(), parsed.Target())
}

func TestParseProofRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := ParseProof([]byte("not a proof"))
	assert.Error(t, err)

	built, err := BuildProof(validParams())
	require.NoError(t, err)

	truncated := built.Bytes()[:len(built.Bytes())-3]
	_, err = ParseProof(truncated)
	assert.Error(t, err)

	trailing := append(append([]byte(nil), built.Bytes()...), 0xff)
	_, err = ParseProof(trailing)
	assert.Error(t, err)
}
