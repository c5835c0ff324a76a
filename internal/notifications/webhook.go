package notifications

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/google/uuid"
)

const (
	eventSource     = "winivox/pipeline"
	eventTypePrefix = "io.winivox.audio."
)

// EventType returns the CloudEvents type attribute for event.
func EventType(event Event) string {
	return eventTypePrefix + string(event)
}

type webhookService struct {
	target string
	client cloudevents.Client
}

func newWebhookService(target string, httpClient *http.Client) (*webhookService, error) {
	opts := []cehttp.Option{}
	if httpClient != nil {
		opts = append(opts, cehttp.WithClient(*httpClient))
	}
	client, err := cloudevents.NewClientHTTP(opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudevents client: %w", err)
	}
	return &webhookService{target: target, client: client}, nil
}

// Publish posts the event in binary content mode: attributes travel as ce-*
// headers and the payload is the JSON body.
func (w *webhookService) Publish(ctx context.Context, event Event, payload Payload) error {
	evt := cloudevents.NewEvent()
	evt.SetID(uuid.NewString())
	evt.SetSource(eventSource)
	evt.SetType(EventType(event))
	evt.SetTime(time.Now().UTC())
	if id := payload.text("submission_id"); id != "" {
		evt.SetSubject(id)
	}
	data := map[string]any(payload)
	if data == nil {
		data = map[string]any{}
	}
	if err := evt.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	result := w.client.Send(cloudevents.ContextWithTarget(ctx, w.target), evt)
	if !cloudevents.IsACK(result) {
		return fmt.Errorf("send webhook notification: %w", result)
	}
	return nil
}
