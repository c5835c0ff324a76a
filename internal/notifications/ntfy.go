package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := formatMessage(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func formatMessage(event Event, payload Payload) (message, bool) {
	id := shortID(payload.text("submission_id"))
	switch event {
	case EventPublished:
		title := payload.text("title")
		if title == "" {
			title = "Historia anonima"
		}
		msg := message{
			title: "Winivox - Published",
			body:  fmt.Sprintf("🎙️ Published: %s (%s)", title, id),
			tags:  []string{"winivox", "publish", "completed"},
		}
		if payload.flag("high_potential") {
			msg.body += "\nHigh potential story"
			msg.tags = append(msg.tags, "star")
			msg.priority = "high"
		}
		return msg, true
	case EventRejected:
		return message{
			title: "Winivox - Rejected",
			body:  fmt.Sprintf("🚫 Rejected by moderation: %s", id),
			tags:  []string{"winivox", "moderation", "rejected"},
		}, true
	case EventQuarantined:
		body := fmt.Sprintf("⏸️ Quarantined: %s", id)
		if reason := payload.text("reason"); reason != "" {
			body += fmt.Sprintf(" (%s)", reason)
		}
		return message{
			title: "Winivox - Quarantined",
			body:  body + "\nManual review required",
			tags:  []string{"winivox", "moderation", "review"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Winivox - Error",
			body:     b.String(),
			tags:     []string{"winivox", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Winivox - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"winivox", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func shortID(id string) string {
	if id == "" {
		return "unknown"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
