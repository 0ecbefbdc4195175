package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealfeed/sealfeed/pkg/content"
	"github.com/sealfeed/sealfeed/pkg/identity"
	"github.com/sealfeed/sealfeed/pkg/ledger"
	"github.com/sealfeed/sealfeed/pkg/seal"
	"github.com/sealfeed/sealfeed/pkg/wallet"
	"github.com/sealfeed/sealfeed/pkg/walrus"
)

const (
	testPkg     = "0xpkg"
	testCreator = "0xcreator"
	testService = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

type countingUploader struct {
	uploads int
	err     error
	lastCt  []byte
}

func (u *countingUploader) Upload(ctx context.Context, data []byte, epochs int, sendObjectTo string) (walrus.BlobRef, error) {
	u.uploads++
	if u.err != nil {
		return "", u.err
	}
	u.lastCt = data
	return walrus.BlobRef(fmt.Sprintf("blob-%d", u.uploads)), nil
}

type countingEncrypter struct {
	inner    Encrypter
	encrypts int
	lastReq  seal.EncryptRequest
}

func (e *countingEncrypter) Encrypt(ctx context.Context, req seal.EncryptRequest) ([]byte, error) {
	e.encrypts++
	e.lastReq = req
	return e.inner.Encrypt(ctx, req)
}

type fakeWallet struct {
	calls []*ledger.MoveCall
	err   error
}

func (w *fakeWallet) Address() string { return "0xme" }

func (w *fakeWallet) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	return []byte("sig"), nil
}

func (w *fakeWallet) SignAndExecuteTransaction(ctx context.Context, call *ledger.MoveCall) (*wallet.TransactionResult, error) {
	w.calls = append(w.calls, call)
	if w.err != nil {
		return nil, w.err
	}
	return &wallet.TransactionResult{Digest: fmt.Sprintf("digest-%d", len(w.calls))}, nil
}

type fakeServices struct {
	svc   *content.Service
	err   error
	calls int
}

func (s *fakeServices) ServiceForCreator(ctx context.Context, creatorID string) (*content.Service, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.svc, nil
}

type fakePreview struct {
	renders int
	err     error
}

func (p *fakePreview) Render(data []byte) ([]byte, error) {
	p.renders++
	if p.err != nil {
		return nil, p.err
	}
	return []byte("preview-of-" + string(data[:min(4, len(data))])), nil
}

type harness struct {
	orch     *Orchestrator
	blobs    *countingUploader
	gateway  *countingEncrypter
	wallet   *fakeWallet
	services *fakeServices
	preview  *fakePreview
	journal  *MemJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	keys, err := seal.NewLocalKeyService([]byte("master"), nil)
	require.NoError(t, err)
	gw, err := seal.NewGateway(keys)
	require.NoError(t, err)

	h := &harness{
		blobs:    &countingUploader{},
		gateway:  &countingEncrypter{inner: gw},
		wallet:   &fakeWallet{},
		services: &fakeServices{svc: &content.Service{ID: testService, CreatorID: testCreator}},
		preview:  &fakePreview{},
		journal:  NewMemJournal(),
	}
	h.orch, err = New(testPkg, Deps{
		Blobs:    h.blobs,
		Gateway:  h.gateway,
		Wallet:   h.wallet,
		Services: h.services,
		Preview:  h.preview,
		Journal:  h.journal,
	})
	require.NoError(t, err)
	return h
}

func imageRequest(taskID string) Request {
	return Request{
		TaskID:      taskID,
		CreatorRef:  testCreator,
		Title:       "sunset",
		Description: "over the bay",
		Kind:        content.KindImage,
		Data:        []byte("raw image bytes"),
		Epochs:      3,
	}
}

func TestPublishImageFullPipeline(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	require.NoError(t, err)

	assert.Equal(t, walrus.BlobRef("blob-1"), res.FullRef)
	assert.Equal(t, walrus.BlobRef("blob-2"), res.PreviewRef)
	assert.Equal(t, "digest-1", res.Digest)
	assert.Equal(t, 2, h.blobs.uploads)
	assert.Equal(t, 1, h.preview.renders)

	// The identifier is scoped under the service reference.
	prefix, err := identity.Normalize(testService).Bytes()
	require.NoError(t, err)
	idBytes, err := res.Identifier.Bytes()
	require.NoError(t, err)
	assert.Equal(t, prefix, idBytes[:len(prefix)])
	assert.Len(t, idBytes, len(prefix)+identity.NonceLen)
}

func TestPublishOnChainArgumentOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	require.NoError(t, err)

	require.Len(t, h.wallet.calls, 1)
	call := h.wallet.calls[0]
	assert.Equal(t, testPkg+"::content::create_content", call.Target)
	require.Len(t, call.Arguments, 6)
	assert.Equal(t, ledger.ObjectArg(testCreator), call.Arguments[0])
	assert.Equal(t, ledger.StringArg("sunset"), call.Arguments[1])
	assert.Equal(t, ledger.StringArg("over the bay"), call.Arguments[2])
	assert.Equal(t, ledger.StringArg("blob-1"), call.Arguments[3])
	assert.Equal(t, ledger.StringArg("blob-2"), call.Arguments[4])
	assert.Equal(t, ledger.StringArg("image"), call.Arguments[5])
}

func TestPublishArticleCompressesAndSkipsPreview(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	req := imageRequest("t1")
	req.Kind = content.KindArticle
	req.Data = []byte("a long article body")

	res, err := h.orch.Publish(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, seal.EncodingXZ, h.gateway.lastReq.Encoding)
	assert.Zero(t, h.preview.renders)
	assert.Equal(t, 1, h.blobs.uploads)
	assert.Equal(t, res.FullRef, res.PreviewRef)
}

func TestPublishResumesAfterWalletFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.wallet.err = errors.New("user closed the popup")

	_, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	require.Error(t, err)
	assert.Equal(t, 2, h.blobs.uploads)

	// Retry with the same task: blobs and identifier are reused, only the
	// on-chain step runs again.
	h.wallet.err = nil
	res, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	require.NoError(t, err)

	assert.Equal(t, 2, h.blobs.uploads, "no re-upload on resume")
	assert.Equal(t, 1, h.gateway.encrypts, "no re-encrypt on resume")
	assert.Equal(t, walrus.BlobRef("blob-1"), res.FullRef)
	require.Len(t, h.wallet.calls, 2)
}

func TestPublishResumesAfterUploadFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.blobs.err = &walrus.TransportError{Op: "upload", Err: errors.New("publisher down")}

	_, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	require.Error(t, err)
	assert.Empty(t, h.wallet.calls)

	state, jerr := h.journal.Load(context.Background(), "t1")
	require.NoError(t, jerr)
	require.NotNil(t, state)
	first := state.Identifier
	assert.NotEmpty(t, first)
	assert.Empty(t, state.FullRef)

	// The identifier derived before the failure is kept on retry.
	h.blobs.err = nil
	res, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	require.NoError(t, err)
	assert.Equal(t, first, res.Identifier)
}

func TestPublishCompletedTaskIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	first, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	require.NoError(t, err)

	again, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, 2, h.blobs.uploads)
	assert.Len(t, h.wallet.calls, 1)
	assert.Equal(t, 1, h.services.calls)
}

func TestPublishWithoutServiceUsesDefaultPrefix(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.services.svc = nil
	h.services.err = content.ErrNoService

	res, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	require.NoError(t, err)

	idBytes, err := res.Identifier.Bytes()
	require.NoError(t, err)
	assert.Equal(t, identity.DefaultPrefix, idBytes[:len(identity.DefaultPrefix)])
}

func TestPublishPreviewFailureFailsTask(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.preview.err = errors.New("not a decodable image")

	_, err := h.orch.Publish(context.Background(), imageRequest("t1"))
	assert.ErrorIs(t, err, ErrPreviewFailed)
	assert.Empty(t, h.wallet.calls)

	// The full blob reference survives in the journal, orphaned in
	// storage but reusable on retry.
	state, jerr := h.journal.Load(context.Background(), "t1")
	require.NoError(t, jerr)
	require.NotNil(t, state)
	assert.Equal(t, walrus.BlobRef("blob-1"), state.FullRef)
}

func TestPublishRejectsEmptyPayload(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	req := imageRequest("t1")
	req.Data = nil

	_, err := h.orch.Publish(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Zero(t, h.blobs.uploads)
}
