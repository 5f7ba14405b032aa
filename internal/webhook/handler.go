package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voiceops/internal/dispatch"
	"voiceops/internal/events"
	"voiceops/pkg/logger"
)

// Ingestor is the slice of the pipeline the webhook needs.
type Ingestor interface {
	Ingest(ctx context.Context, raw events.Payload) dispatch.Outcome
}

// Handler terminates the provider's event-stream webhook.
type Handler struct {
	pipeline Ingestor

	// rawLogDir, when set, receives one pretty-printed JSON file per
	// delivery. Dump failures are logged and ignored.
	rawLogDir string

	clock func() time.Time
}

func NewHandler(pipeline Ingestor, rawLogDir string) *Handler {
	return &Handler{pipeline: pipeline, rawLogDir: rawLogDir, clock: time.Now}
}

// HandleTwilioEvents is POST /webhooks/twilio-events.
//
// The provider treats any 2xx as delivered and never retries based on our
// body, so every pipeline outcome acknowledges with 204. Only an
// undecodable body earns a 400.
func (h *Handler) HandleTwilioEvents(c *gin.Context) {
	log := logger.FromGin(c)

	payload, err := decodeBody(c)
	if err != nil {
		log.Warn("webhook body rejected", "err", err)
		c.Status(http.StatusBadRequest)
		return
	}

	h.dumpRaw(payload, log)

	outcome := h.pipeline.Ingest(c.Request.Context(), payload)
	log.Info("webhook event processed", "outcome", string(outcome))

	c.Status(http.StatusNoContent)
}

func decodeBody(c *gin.Context) (events.Payload, error) {
	if strings.Contains(c.ContentType(), "application/json") {
		var payload events.Payload
		if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("webhook: decode json body: %w", err)
		}
		return payload, nil
	}

	// Form-encoded fallback: flatten the posted fields into a payload so
	// the classifier's parameter probing still has something to chew on.
	if err := c.Request.ParseForm(); err != nil {
		return nil, fmt.Errorf("webhook: parse form body: %w", err)
	}
	payload := events.Payload{}
	for k, vs := range c.Request.PostForm {
		if len(vs) > 0 {
			payload[k] = vs[0]
		}
	}
	return payload, nil
}

func (h *Handler) dumpRaw(payload events.Payload, log *slog.Logger) {
	if h.rawLogDir == "" {
		return
	}
	if err := os.MkdirAll(h.rawLogDir, 0o755); err != nil {
		log.Warn("raw event dir create failed", "dir", h.rawLogDir, "err", err)
		return
	}
	now := h.clock()
	name := fmt.Sprintf("twilio_event_%s_%06d.json", now.Format("20060102_150405"), now.Nanosecond()/1000)
	buf, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Warn("raw event encode failed", "err", err)
		return
	}
	if err := os.WriteFile(filepath.Join(h.rawLogDir, name), buf, 0o644); err != nil {
		log.Warn("raw event dump failed", "file", name, "err", err)
	}
}
