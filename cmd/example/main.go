// Command example walks the full flow against in-process stand-ins: a
// creator publishes an encrypted article, a subscriber authorizes a
// session and reads it back.
package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"time"

	sealfeed "github.com/sealfeed/sealfeed"
	"github.com/sealfeed/sealfeed/internal/journal"
	"github.com/sealfeed/sealfeed/internal/preview"
	"github.com/sealfeed/sealfeed/pkg/content"
	"github.com/sealfeed/sealfeed/pkg/ledger"
	"github.com/sealfeed/sealfeed/pkg/seal"
	"github.com/sealfeed/sealfeed/pkg/wallet"
)

const (
	pkgID     = "0xexamplepkg"
	creatorID = "0xcreator"
	serviceID = "0x3333333333333333333333333333333333333333333333333333333333333333"
	addr      = "0xexamplewallet"
)

// memChain is a minimal in-memory ledger for the walkthrough.
type memChain struct {
	mu      sync.Mutex
	objects map[string]*ledger.Object
	owned   map[string][]ledger.Object
	events  []ledger.Event
}

func (c *memChain) GetObject(ctx context.Context, id string) (*ledger.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if obj, ok := c.objects[id]; ok {
		return obj, nil
	}
	return nil, ledger.ErrNotFound
}

func (c *memChain) QueryEvents(ctx context.Context, eventType string, limit int) ([]ledger.Event, error) {
	var out []ledger.Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *memChain) GetOwnedObjects(ctx context.Context, owner, structType string) ([]ledger.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owned[owner+"/"+structType], nil
}

func (c *memChain) WaitForTransaction(ctx context.Context, digest string) error { return nil }

func (c *memChain) GetTransactionBlock(ctx context.Context, digest string) (*ledger.TransactionBlock, error) {
	return &ledger.TransactionBlock{Digest: digest}, nil
}

// memWallet approves every prompt and executes create_content against the
// chain, standing in for a browser wallet plus validators.
type memWallet struct {
	chain  *memChain
	mu     sync.Mutex
	minted int
}

func (w *memWallet) Address() string { return addr }

func (w *memWallet) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	fmt.Printf("wallet: signing session message (%d bytes)\n", len(message))
	return []byte("example-signature"), nil
}

func (w *memWallet) SignAndExecuteTransaction(ctx context.Context, call *ledger.MoveCall) (*wallet.TransactionResult, error) {
	fmt.Printf("wallet: executing %s\n", call.Target)
	w.mu.Lock()
	w.minted++
	id := fmt.Sprintf("0xcontent%d", w.minted)
	w.mu.Unlock()

	w.chain.mu.Lock()
	defer w.chain.mu.Unlock()
	w.chain.objects[id] = &ledger.Object{
		ID:   id,
		Type: pkgID + "::content::Content",
		Fields: map[string]any{
			"creator_id":        call.Arguments[0].Object,
			"title":             call.Arguments[1].String,
			"description":       call.Arguments[2].String,
			"walrus_reference":  call.Arguments[3].String,
			"preview_reference": call.Arguments[4].String,
			"content_type":      call.Arguments[5].String,
			"service_id":        serviceID,
		},
	}
	return &wallet.TransactionResult{Digest: "0xexampledigest-" + id}, nil
}

// samplePNG draws a small gradient image for the image-publish leg.
func samplePNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: uint8(4 * x), G: uint8(4 * y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Fatal(err)
	}
	return buf.Bytes()
}

func startWalrus() (publisherURL, aggregatorURL string, stop func()) {
	var mu sync.Mutex
	blobs := make(map[string][]byte)
	n := 0

	pub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		n++
		id := fmt.Sprintf("exampleblob%d", n)
		blobs[id] = body
		mu.Unlock()
		fmt.Printf("walrus: stored %d bytes as %s\n", len(body), id)
		fmt.Fprintf(w, `{"newlyCreated":{"blobObject":{"blobId":%q}}}`, id)
	}))
	agg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, ok := blobs[r.URL.Path[len("/v1/blobs/"):]]
		mu.Unlock()
		if !ok {
			http.Error(w, "no such blob", http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	}))
	return pub.URL, agg.URL, func() { pub.Close(); agg.Close() }
}

func main() {
	fmt.Println("Starting sealfeed example")

	chain := &memChain{
		objects: make(map[string]*ledger.Object),
		owned:   make(map[string][]ledger.Object),
	}
	chain.owned[addr+"/"+pkgID+"::creator::Creator"] = []ledger.Object{{
		ID:     creatorID,
		Fields: map[string]any{"name": "example creator"},
	}}
	chain.owned[addr+"/"+pkgID+"::subscription::Subscription"] = []ledger.Object{{
		ID:     "0xsub1",
		Fields: map[string]any{"service_id": serviceID},
	}}
	chain.events = append(chain.events, ledger.Event{
		Type:   pkgID + "::subscription::ServiceCreatedEvent",
		Parsed: map[string]any{"creator_id": creatorID, "service_id": serviceID},
	})

	pubURL, aggURL, stop := startWalrus()
	defer stop()

	keys, err := seal.NewLocalKeyService([]byte("example master secret"), nil)
	if err != nil {
		log.Fatal(err)
	}

	journalDir := filepath.Join(os.TempDir(), fmt.Sprintf("sealfeed-example-%d", time.Now().UnixNano()))
	store, err := journal.NewStore(journal.StoreConfig{Path: journalDir})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	defer os.RemoveAll(journalDir)

	client, err := sealfeed.New(sealfeed.Config{
		PackageID:     pkgID,
		PublisherURL:  pubURL,
		AggregatorURL: aggURL,
	}, sealfeed.Dependencies{
		Wallet:  &memWallet{chain: chain},
		Ledger:  chain,
		Keys:    keys,
		Journal: store,
		Preview: preview.NewRenderer(preview.Options{}),
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	article := []byte("An example article only subscribers can read.")

	res, err := client.Publish(ctx, sealfeed.PublishRequest{
		Title:       "Example post",
		Description: "Walkthrough of the publish and decrypt flow",
		Kind:        content.KindArticle,
		Data:        article,
	})
	if err != nil {
		log.Fatal(fmt.Sprintf("publish failed: %s", err))
	}
	fmt.Printf("published: digest=%s blob=%s\n", res.ContentDigest, res.FullRef)

	plaintext, err := client.DecryptContent(ctx, "0xcontent1")
	if err != nil {
		log.Fatal(fmt.Sprintf("decrypt failed: %s", err))
	}
	fmt.Printf("decrypted: %q\n", plaintext)

	imgRes, err := client.Publish(ctx, sealfeed.PublishRequest{
		TaskID:      "example-image",
		Title:       "Example image",
		Description: "Image with a blurred public preview",
		Kind:        content.KindImage,
		Data:        samplePNG(),
	})
	if err != nil {
		log.Fatal(fmt.Sprintf("image publish failed: %s", err))
	}
	fmt.Printf("published image: full=%s preview=%s\n", imgRes.FullRef, imgRes.PreviewRef)

	imgBytes, err := client.DecryptContent(ctx, "0xcontent2")
	if err != nil {
		log.Fatal(fmt.Sprintf("image decrypt failed: %s", err))
	}
	fmt.Printf("decrypted image: %d bytes\n", len(imgBytes))
}
