package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voiceops/internal/events"
)

const defaultSlackBaseURL = "https://slack.com/api"

// SlackNotifier posts Block Kit messages via chat.postMessage.
type SlackNotifier struct {
	token   string
	channel string
	baseURL string
	client  *http.Client
}

type SlackOption func(*SlackNotifier)

// WithSlackBaseURL overrides the API endpoint. Used in tests.
func WithSlackBaseURL(url string) SlackOption {
	return func(n *SlackNotifier) { n.baseURL = url }
}

func WithSlackHTTPClient(c *http.Client) SlackOption {
	return func(n *SlackNotifier) { n.client = c }
}

func NewSlackNotifier(token, channel string, opts ...SlackOption) *SlackNotifier {
	n := &SlackNotifier{
		token:   token,
		channel: channel,
		baseURL: defaultSlackBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func header(text string) slackBlock {
	return slackBlock{Type: "header", Text: &slackText{Type: "plain_text", Text: text}}
}

func section(markdown string) slackBlock {
	return slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: markdown}}
}

func (n *SlackNotifier) NotifyError(ctx context.Context, p events.ErrorProjection) error {
	body := fmt.Sprintf("*Error code:* `%s`\n*Level:* %s\n*Call SID:* `%s`\n*Event ID:* `%s`",
		orDash(p.ErrorCode), orDash(p.ErrorMessage), orDash(p.CallSID), p.EventID)
	blocks := []slackBlock{
		header(":rotating_light: Call error logged"),
		section(body),
	}
	return n.post(ctx, "Call error logged", blocks)
}

func (n *SlackNotifier) NotifySlowProcessing(ctx context.Context, a SlowProcessingAlert) error {
	body := fmt.Sprintf("*Event ID:* `%s`\n*Took:* %.2fs (threshold %.2fs)",
		a.EventID, a.Elapsed.Seconds(), a.Threshold.Seconds())
	blocks := []slackBlock{
		header(":hourglass_flowing_sand: Slow event processing"),
		section(body),
	}
	return n.post(ctx, "Slow event processing", blocks)
}

func (n *SlackNotifier) NotifyIdleStream(ctx context.Context, a IdleStreamAlert) error {
	body := fmt.Sprintf("*No events for:* %.0f minutes (threshold %.0f)\n*Last event at:* %s",
		a.Idle.Minutes(), a.Threshold.Minutes(), a.LastEvent.UTC().Format(time.RFC3339))
	blocks := []slackBlock{
		header(":zzz: Event stream idle"),
		section(body),
	}
	return n.post(ctx, "Event stream idle", blocks)
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (n *SlackNotifier) post(ctx context.Context, fallback string, blocks []slackBlock) error {
	payload := map[string]any{
		"channel": n.channel,
		"text":    fallback,
		"blocks":  blocks,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alerting: encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/chat.postMessage", bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("alerting: build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerting: post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alerting: slack returned status %d", resp.StatusCode)
	}
	var out slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("alerting: decode slack response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("alerting: slack rejected message: %s", out.Error)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
