package observability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Notifier delivers alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// SlackNotifier posts alerts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// SlackOption configures a SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithSlackClient replaces the HTTP client used for webhook posts.
func WithSlackClient(c *http.Client) SlackOption {
	return func(s *SlackNotifier) { s.client = c }
}

// NewSlackNotifier creates a notifier for webhookURL.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts alerts as one message, highest severity first. An empty slice
// sends nothing.
func (s *SlackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(s.payload(alerts))
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (s *SlackNotifier) payload(alerts []Alert) slackPayload {
	sorted := append([]Alert(nil), alerts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityOrder(sorted[i].Severity) < severityOrder(sorted[j].Severity)
	})

	title := fmt.Sprintf("Heady Conductor: %d active alert(s)", len(sorted))
	blocks := []slackBlock{{Type: "header", Text: &slackText{Type: "plain_text", Text: title}}}
	for _, a := range sorted {
		blocks = append(blocks,
			slackBlock{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("%s %s", severityEmoji(a.Severity), a.Message)},
				Fields: []slackText{
					{Type: "mrkdwn", Text: "*Severity*\n" + strings.ToUpper(string(a.Severity))},
					{Type: "mrkdwn", Text: "*Condition*\n`" + a.Condition + "`"},
				},
			},
			slackBlock{
				Type:     "context",
				Elements: []slackText{{Type: "mrkdwn", Text: "triggered " + a.TriggeredAt.UTC().Format(time.RFC3339)}},
			},
		)
	}
	blocks = append(blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: "sent " + s.now().UTC().Format(time.RFC3339)}},
	})
	return slackPayload{Text: title, Blocks: blocks}
}

func severityOrder(sev AlertSeverity) int {
	switch sev {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	default:
		return 3
	}
}

func severityEmoji(sev AlertSeverity) string {
	switch sev {
	case SeverityHigh:
		return ":red_circle:"
	case SeverityMedium:
		return ":large_yellow_circle:"
	case SeverityLow:
		return ":large_blue_circle:"
	default:
		return ":grey_question:"
	}
}
