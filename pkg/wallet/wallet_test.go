package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealfeed/sealfeed/pkg/ledger"
)

type slowWallet struct {
	delay time.Duration
}

func (w *slowWallet) Address() string { return "0xaddr" }

func (w *slowWallet) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	time.Sleep(w.delay)
	return []byte("sig"), nil
}

func (w *slowWallet) SignAndExecuteTransaction(ctx context.Context, call *ledger.MoveCall) (*TransactionResult, error) {
	time.Sleep(w.delay)
	return &TransactionResult{Digest: "digest"}, nil
}

func TestSerializedAllowsSequentialUse(t *testing.T) {
	t.Parallel()
	s := NewSerialized(&slowWallet{})

	sig, err := s.SignPersonalMessage(context.Background(), []byte("m"))
	require.NoError(t, err)
	assert.Equal(t, []byte("sig"), sig)

	res, err := s.SignAndExecuteTransaction(context.Background(), &ledger.MoveCall{Target: "a::b::c"})
	require.NoError(t, err)
	assert.Equal(t, "digest", res.Digest)
}

func TestSerializedRejectsConcurrentRequests(t *testing.T) {
	t.Parallel()
	s := NewSerialized(&slowWallet{delay: 200 * time.Millisecond})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.SignPersonalMessage(context.Background(), []byte("first"))
		assert.NoError(t, err)
	}()

	time.Sleep(50 * time.Millisecond)
	_, err := s.SignAndExecuteTransaction(context.Background(), &ledger.MoveCall{Target: "a::b::c"})
	assert.ErrorIs(t, err, ErrSignerBusy)
	wg.Wait()
}
