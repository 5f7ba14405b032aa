package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"voiceops/internal/dispatch"
	"voiceops/internal/events"
)

type fakeIngestor struct {
	payloads []events.Payload
	outcome  dispatch.Outcome
}

func (f *fakeIngestor) Ingest(_ context.Context, raw events.Payload) dispatch.Outcome {
	f.payloads = append(f.payloads, raw)
	return f.outcome
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/twilio-events", h.HandleTwilioEvents)
	return r
}

func postJSON(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio-events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookAcknowledgesValidEvent(t *testing.T) {
	ing := &fakeIngestor{outcome: dispatch.OutcomePersisted}
	r := newTestRouter(NewHandler(ing, ""))

	w := postJSON(r, `{"id":"EV1","type":"call.initiated","data":{"request":{"parameters":{"CallSid":"CA123"}}}}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(ing.payloads) != 1 || ing.payloads[0]["id"] != "EV1" {
		t.Fatalf("pipeline payloads = %+v", ing.payloads)
	}
}

func TestWebhookAcknowledgesFailedPipeline(t *testing.T) {
	// Provider retries are not driven by our status: an event the pipeline
	// could not fully process is still acknowledged.
	for _, outcome := range []dispatch.Outcome{
		dispatch.OutcomePersistenceFailed,
		dispatch.OutcomeClassificationFailed,
		dispatch.OutcomeDelivered,
	} {
		ing := &fakeIngestor{outcome: outcome}
		w := postJSON(newTestRouter(NewHandler(ing, "")), `{"id":"EV1","type":"call.initiated"}`)
		if w.Code != http.StatusNoContent {
			t.Fatalf("outcome %s: status = %d, want 204", outcome, w.Code)
		}
	}
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	ing := &fakeIngestor{outcome: dispatch.OutcomePersisted}
	w := postJSON(newTestRouter(NewHandler(ing, "")), `{"id":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(ing.payloads) != 0 {
		t.Fatalf("malformed body reached the pipeline")
	}
}

func TestWebhookAcceptsFormBody(t *testing.T) {
	ing := &fakeIngestor{outcome: dispatch.OutcomePersisted}
	r := newTestRouter(NewHandler(ing, ""))

	form := url.Values{"CallSid": {"CA123"}, "CallStatus": {"completed"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio-events", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(ing.payloads) != 1 || ing.payloads[0]["CallSid"] != "CA123" {
		t.Fatalf("form payload = %+v", ing.payloads)
	}
}

func TestWebhookDumpsRawEvent(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngestor{outcome: dispatch.OutcomePersisted}
	r := newTestRouter(NewHandler(ing, dir))

	w := postJSON(r, `{"id":"EV1","type":"call.initiated"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "twilio_event_*.json"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("dump files = %v, err = %v", matches, err)
	}
	buf, err := os.ReadFile(matches[0])
	if err != nil || !strings.Contains(string(buf), `"EV1"`) {
		t.Fatalf("dump content = %q, err = %v", buf, err)
	}
}
