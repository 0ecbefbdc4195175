// Package proxy exposes a server-side upload route for browser clients.
// Browsers cannot PUT to a storage publisher directly without tripping
// over CORS and leaking the publisher URL; the proxy accepts the upload,
// forwards it, and normalizes the response envelope.
package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// DefaultEpochs is the storage duration applied when the client sends
// none.
const DefaultEpochs = 1

// maxUploadBytes caps request bodies. Walrus blobs can be large but a
// browser upload beyond this is almost certainly a mistake.
const maxUploadBytes = 64 << 20

// Config configures the proxy handler.
type Config struct {
	// PublisherURL is the upstream walrus publisher base URL.
	PublisherURL string

	// AllowedOrigins for CORS. Empty allows none.
	AllowedOrigins []string

	// Client overrides the forwarding HTTP client.
	Client *http.Client

	Logger *logrus.Logger
}

// uploadRequest is the JSON upload shape: the payload as a byte-value
// array plus storage parameters. Raw-body uploads skip this envelope.
type uploadRequest struct {
	EncryptedData []int  `json:"encryptedData"`
	NumEpochs     int    `json:"numEpochs"`
	SendObjectTo  string `json:"send_object_to"`
}

type handler struct {
	publisher string
	client    *http.Client
	log       *logrus.Logger
}

// NewHandler builds the proxy's HTTP handler, CORS included.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.PublisherURL == "" {
		return nil, fmt.Errorf("proxy: publisher URL is required")
	}
	if _, err := url.Parse(cfg.PublisherURL); err != nil {
		return nil, fmt.Errorf("proxy: invalid publisher URL: %w", err)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 2 * time.Minute}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	h := &handler{
		publisher: cfg.PublisherURL,
		client:    cfg.Client,
		log:       cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/blobs", h.handleUpload)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodPut},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux), nil
}

func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, epochs, sendTo, err := h.readUpload(r)
	if err != nil {
		h.log.WithError(err).Warn("rejecting malformed upload request")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target := fmt.Sprintf("%s/v1/blobs?epochs=%d", h.publisher, epochs)
	if sendTo != "" {
		target += "&send_object_to=" + url.QueryEscape(sendTo)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.WithError(err).Error("publisher unreachable")
		writeError(w, http.StatusBadGateway, "publisher unreachable: "+err.Error())
		return
	}
	defer resp.Body.Close()

	upstream, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "reading publisher response: "+err.Error())
		return
	}

	if resp.StatusCode != http.StatusOK {
		h.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"bytes":  len(body),
		}).Warn("publisher rejected upload")
		writeError(w, resp.StatusCode, string(upstream))
		return
	}

	h.log.WithFields(logrus.Fields{
		"bytes":  len(body),
		"epochs": epochs,
	}).Info("blob stored")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{"info": upstream})
}

// readUpload accepts either the JSON byte-array envelope or a raw body
// with query parameters.
func (h *handler) readUpload(r *http.Request) (body []byte, epochs int, sendTo string, err error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		return nil, 0, "", fmt.Errorf("reading request body: %w", err)
	}
	if len(raw) > maxUploadBytes {
		return nil, 0, "", fmt.Errorf("upload exceeds %d bytes", maxUploadBytes)
	}
	if len(raw) == 0 {
		return nil, 0, "", fmt.Errorf("empty upload body")
	}

	epochs = DefaultEpochs

	if r.Header.Get("Content-Type") == "application/json" {
		var req uploadRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, 0, "", fmt.Errorf("decoding upload envelope: %w", err)
		}
		if len(req.EncryptedData) == 0 {
			return nil, 0, "", fmt.Errorf("encryptedData must not be empty")
		}
		body = make([]byte, len(req.EncryptedData))
		for i, v := range req.EncryptedData {
			if v < 0 || v > 255 {
				return nil, 0, "", fmt.Errorf("encryptedData[%d] out of byte range", i)
			}
			body[i] = byte(v)
		}
		if req.NumEpochs > 0 {
			epochs = req.NumEpochs
		}
		return body, epochs, req.SendObjectTo, nil
	}

	if q := r.URL.Query().Get("epochs"); q != "" {
		epochs, err = strconv.Atoi(q)
		if err != nil || epochs <= 0 {
			return nil, 0, "", fmt.Errorf("invalid epochs value %q", q)
		}
	}
	return raw, epochs, r.URL.Query().Get("send_object_to"), nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
