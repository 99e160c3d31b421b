package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"modelmine/pkg/logger"
)

// Alarm is an operator-facing incident, e.g. a ledger fork or a failed refund
type Alarm struct {
	Title    string
	JobID    string
	Detail   string
	RaisedAt time.Time
}

// FeishuNotifier posts alarms to a Feishu (Lark) webhook
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewFeishuNotifier creates a notifier. An empty URL disables sending.
func NewFeishuNotifier(webhookURL string) *FeishuNotifier {
	if webhookURL == "" {
		logger.Warn("Feishu webhook URL not configured, alarm notifications will be disabled")
	}
	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a webhook is configured
func (f *FeishuNotifier) Enabled() bool {
	return f.webhookURL != ""
}

// Raise sends an alarm card
func (f *FeishuNotifier) Raise(ctx context.Context, alarm Alarm) error {
	if f.webhookURL == "" {
		logger.DebugCtx(ctx, "Feishu webhook URL not configured, skipping alarm: %s", alarm.Title)
		return nil
	}
	if alarm.RaisedAt.IsZero() {
		alarm.RaisedAt = time.Now()
	}

	payload, err := json.Marshal(buildAlarmMessage(alarm))
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "Feishu alarm sent, title: %s, job_id: %s", alarm.Title, alarm.JobID)
	return nil
}

func buildAlarmMessage(alarm Alarm) map[string]interface{} {
	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": "red",
				"title": map[string]interface{}{
					"content": alarm.Title,
					"tag":     "plain_text",
				},
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"fields": []interface{}{
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Job**\n%s", alarm.JobID),
								"tag":     "lark_md",
							},
						},
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Time**\n%s", alarm.RaisedAt.UTC().Format("2006-01-02 15:04:05")),
								"tag":     "lark_md",
							},
						},
					},
				},
				map[string]interface{}{
					"tag": "hr",
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": alarm.Detail,
						"tag":     "lark_md",
					},
				},
			},
		},
	}
}
