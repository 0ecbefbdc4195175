package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealfeed/sealfeed/pkg/content"
	"github.com/sealfeed/sealfeed/pkg/identity"
	"github.com/sealfeed/sealfeed/pkg/policy"
	"github.com/sealfeed/sealfeed/pkg/seal"
	"github.com/sealfeed/sealfeed/pkg/session"
	"github.com/sealfeed/sealfeed/pkg/walrus"
)

const testPkg = "0xpkg"

// serviceID is a realistic 32-byte object reference.
var testServiceID = "0x" + repeatHex("ab", 32)

func repeatHex(unit string, n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += unit
	}
	return s
}

type fakeBlobs struct {
	data      map[walrus.BlobRef][]byte
	downloads int
	err       error
}

func (f *fakeBlobs) Download(ctx context.Context, ref walrus.BlobRef) ([]byte, error) {
	f.downloads++
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.data[ref]
	if !ok {
		return nil, &walrus.StorageError{StatusCode: 404, Body: "blob not found"}
	}
	return d, nil
}

// countingGateway instruments decrypt attempts per candidate identifier.
type countingGateway struct {
	inner    Gateway
	attempts []identity.Identifier
	err      error // when set, returned for every attempt
}

func (g *countingGateway) Decrypt(ctx context.Context, req seal.DecryptRequest) ([]byte, error) {
	g.attempts = append(g.attempts, req.Proof.Identifier())
	if g.err != nil {
		return nil, g.err
	}
	return g.inner.Decrypt(ctx, req)
}

type fakeSigner struct {
	addr     string
	rejected bool
	signs    int
}

func (f *fakeSigner) Address() string { return f.addr }

func (f *fakeSigner) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	f.signs++
	if f.rejected {
		return nil, errors.New("rejected in wallet UI")
	}
	return []byte("wallet-signature"), nil
}

// fixture encrypts content under the given identifier and wires a full
// orchestrator around in-memory fakes.
type fixture struct {
	orch    *Orchestrator
	blobs   *fakeBlobs
	gateway *countingGateway
	signer  *fakeSigner
	req     Request
	states  []State
}

func newFixture(t *testing.T, encryptID identity.Identifier, opts ...Option) *fixture {
	t.Helper()
	return newFixtureApprover(t, encryptID, nil, opts...)
}

func newFixtureApprover(t *testing.T, encryptID identity.Identifier, approve seal.Approver, opts ...Option) *fixture {
	t.Helper()
	keys, err := seal.NewLocalKeyService([]byte("master"), approve)
	require.NoError(t, err)
	gw, err := seal.NewGateway(keys)
	require.NoError(t, err)

	ct, err := gw.Encrypt(context.Background(), seal.EncryptRequest{
		Plaintext: []byte("the plaintext"),
		ID:        encryptID,
		Scope:     testPkg,
	})
	require.NoError(t, err)

	f := &fixture{
		blobs:   &fakeBlobs{data: map[walrus.BlobRef][]byte{"blobF": ct}},
		gateway: &countingGateway{inner: gw},
		signer:  &fakeSigner{addr: "0xme"},
	}
	f.req = Request{
		Record: &content.Record{
			ID:              "0xcontent",
			WalrusReference: "blobF",
			Kind:            content.KindImage,
		},
		Service:      &content.Service{ID: testServiceID},
		Subscription: &content.Subscription{ID: "0xsub", ServiceID: testServiceID},
	}

	opts = append(opts, WithTransitionHook(func(s State) { f.states = append(f.states, s) }))
	f.orch, err = New(testPkg, Deps{Blobs: f.blobs, Gateway: f.gateway, Signer: f.signer}, opts...)
	require.NoError(t, err)
	return f
}

func serviceScopedID(t *testing.T) identity.Identifier {
	t.Helper()
	prefix, err := identity.Normalize(testServiceID).Bytes()
	require.NoError(t, err)
	id, err := identity.Derive(prefix, identity.NonceLen)
	require.NoError(t, err)
	return id
}

func defaultScopedID(t *testing.T) identity.Identifier {
	t.Helper()
	id, err := identity.Derive(identity.DefaultPrefix, identity.NonceLen)
	require.NoError(t, err)
	return id
}

func TestServiceScopedContentDecryptsOnFirstStrategy(t *testing.T) {
	t.Parallel()
	f := newFixture(t, serviceScopedID(t))

	res, err := f.orch.Decrypt(context.Background(), f.req)
	require.NoError(t, err)

	assert.Equal(t, []byte("the plaintext"), res.Plaintext)
	assert.Equal(t, "service-prefix", res.Strategy)
	// Strategy B must not be attempted once A succeeds.
	assert.Len(t, f.gateway.attempts, 1)
	assert.Equal(t, StateDecrypted, f.states[len(f.states)-1])
}

func TestDefaultScopedContentFallsBackToOriginal(t *testing.T) {
	t.Parallel()
	original := defaultScopedID(t)
	f := newFixture(t, original)

	res, err := f.orch.Decrypt(context.Background(), f.req)
	require.NoError(t, err)

	assert.Equal(t, "original", res.Strategy)
	assert.Equal(t, original, res.Identifier)
	// Strategy A was tried first and denied.
	require.Len(t, f.gateway.attempts, 2)
	assert.NotEqual(t, original, f.gateway.attempts[0])
	assert.Equal(t, original, f.gateway.attempts[1])
}

func TestMissingSubscriptionShortCircuits(t *testing.T) {
	t.Parallel()
	f := newFixture(t, serviceScopedID(t))
	f.req.Subscription = nil

	_, err := f.orch.Decrypt(context.Background(), f.req)
	assert.ErrorIs(t, err, ErrSubscriptionRequired)

	// No storage or gateway traffic at all.
	assert.Zero(t, f.blobs.downloads)
	assert.Empty(t, f.gateway.attempts)
	assert.Zero(t, f.signer.signs)
}

func TestTransportErrorSkipsRemainingStrategies(t *testing.T) {
	t.Parallel()
	f := newFixture(t, serviceScopedID(t))
	f.gateway.err = &seal.NetworkError{Err: errors.New("key servers unreachable")}

	_, err := f.orch.Decrypt(context.Background(), f.req)

	var ne *seal.NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Len(t, f.gateway.attempts, 1, "second strategy must not run on transport failure")
	assert.Equal(t, StateFailed, f.states[len(f.states)-1])
}

func TestDownloadFailureFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, serviceScopedID(t))
	f.blobs.err = &walrus.TransportError{Op: "download", Err: errors.New("dns failure")}

	_, err := f.orch.Decrypt(context.Background(), f.req)
	var te *walrus.TransportError
	assert.True(t, errors.As(err, &te))
	assert.Empty(t, f.gateway.attempts)
}

func TestUserRejectionIsTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, serviceScopedID(t))
	f.signer.rejected = true

	_, err := f.orch.Decrypt(context.Background(), f.req)
	assert.ErrorIs(t, err, session.ErrUserRejected)
	assert.Empty(t, f.gateway.attempts)
}

func TestExhaustionAfterAllStrategiesDenied(t *testing.T) {
	t.Parallel()
	deny := func(context.Context, *policy.AccessProof, *session.Key) error {
		return seal.ErrAccessDenied
	}
	f := newFixtureApprover(t, serviceScopedID(t), deny)

	_, err := f.orch.Decrypt(context.Background(), f.req)
	assert.ErrorIs(t, err, ErrDecryptionExhausted)
	// Both strategies rebuild the same identifier here, so the duplicate
	// candidate is attempted only once.
	assert.Len(t, f.gateway.attempts, 1)
	assert.Equal(t, StateFailed, f.states[len(f.states)-1])
}

func TestCancellationIsDistinctFromFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, serviceScopedID(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Decrypt(ctx, f.req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, f.states[len(f.states)-1])
	assert.NotContains(t, f.states, StateFailed)
}

func TestMalformedCiphertextFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, serviceScopedID(t))
	f.blobs.data["blobF"] = []byte("not an envelope at all")

	_, err := f.orch.Decrypt(context.Background(), f.req)
	var fe *seal.FormatError
	assert.True(t, errors.As(err, &fe))
	assert.Empty(t, f.gateway.attempts)
}
