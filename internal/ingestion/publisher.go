package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"PerpCore/internal/observability"
)

// ReportPublisher publishes execution reports to NATS for downstream
// consumers. Reports are published after the persistence record is
// queued. Subjects follow the pattern perp.reports.{kind}.{market}.
type ReportPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan Report
	metrics   *observability.Metrics
}

// Report is a finished action ready for outbound publishing.
type Report struct {
	ActionID    string      `json:"action_id"`
	PlanID      string      `json:"plan_id,omitempty"`
	Kind        string      `json:"kind"`
	MarketToken string      `json:"market_token,omitempty"`
	Owner       string      `json:"owner,omitempty"`
	Status      string      `json:"status"` // "executed" or "rejected"
	Reason      string      `json:"reason,omitempty"`
	Payload     interface{} `json:"payload,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

func NewReportPublisher(js jetstream.JetStream, inputChan <-chan Report, metrics *observability.Metrics) *ReportPublisher {
	return &ReportPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the publisher loop.
func (rp *ReportPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case rep, ok := <-rp.inputChan:
			if !ok {
				return nil
			}

			if err := rp.publish(ctx, rep); err != nil {
				log.Printf("WARN: report publish failed action=%s: %v", rep.ActionID, err)
				// Non-fatal: consumers can query the action log directly
			}
		}
	}
}

func (rp *ReportPublisher) publish(ctx context.Context, rep Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	subject := fmt.Sprintf("perp.reports.%s", rep.Kind)
	if rep.MarketToken != "" {
		subject = fmt.Sprintf("%s.%s", subject, rep.MarketToken)
	}

	_, err = rp.js.Publish(ctx, subject, data)
	return err
}

// Enqueue offers a report to the publish channel without blocking the
// execution loop. Dropped reports are counted; the action log in
// Postgres stays authoritative.
func Enqueue(ch chan<- Report, rep Report, metrics *observability.Metrics) {
	select {
	case ch <- rep:
	default:
		if metrics != nil {
			metrics.PublishDrops.Inc()
		}
		log.Printf("WARN: report channel full, dropped action=%s", rep.ActionID)
	}
}

// EnsureReportStream creates the outbound reports stream.
func EnsureReportStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "PERP_REPORTS",
		Subjects:  []string{"perp.reports.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create report stream: %w", err)
	}
	log.Println("INFO: ensured stream PERP_REPORTS")
	return nil
}
