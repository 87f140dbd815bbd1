package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-mailhooks/core"
)

const defaultMaxBodyBytes = 4 << 20

// Handler is the provider-facing HTTP endpoint. A bad signature is the
// only condition that rejects a request; everything past verification
// is acknowledged with 200 so the provider never retries events we have
// already consumed.
type Handler struct {
	Verifier  Verifier
	Processor *Processor

	// SignatureHeader names the request header carrying the provider
	// signature. Empty falls back to X-Postmark-Signature.
	SignatureHeader string
	MaxBodyBytes    int64
}

func NewHandler(verifier Verifier, processor *Processor) *Handler {
	return &Handler{
		Verifier:        verifier,
		Processor:       processor,
		SignatureHeader: "X-Postmark-Signature",
		MaxBodyBytes:    defaultMaxBodyBytes,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Processor == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": "handler_not_configured",
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes()))
	if err != nil {
		// A truncated read still acknowledges: the provider cannot fix
		// a transport hiccup by replaying a body we half-consumed.
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if h.Verifier != nil {
		signature := strings.TrimSpace(r.Header.Get(h.signatureHeader()))
		if err := h.Verifier.Verify(r.Context(), body, signature); err != nil {
			// Providers match on the literal error string, so the body
			// stays fixed regardless of how the failure is classified.
			writeJSON(w, core.MapError(err).Code, map[string]any{
				"ok":    false,
				"error": "invalid_signature",
			})
			return
		}
	}

	h.Processor.ProcessPayload(r.Context(), body)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) signatureHeader() string {
	if h != nil {
		if header := strings.TrimSpace(h.SignatureHeader); header != "" {
			return header
		}
	}
	return "X-Postmark-Signature"
}

func (h *Handler) maxBodyBytes() int64 {
	if h != nil && h.MaxBodyBytes > 0 {
		return h.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
