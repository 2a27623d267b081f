package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"PerpCore/internal/observability"
)

// NATSSubscriber subscribes to NATS JetStream action subjects and feeds
// raw requests into the execution shell via requestChan. NATS JetStream
// is the primary ingestion surface; each action kind has its own
// subject so consumers can scale independently.
type NATSSubscriber struct {
	js          jetstream.JetStream
	requestChan chan<- RawRequest
	metrics     *observability.Metrics
	consumers   []jetstream.ConsumeContext
}

// RawRequest is a parsed-but-untyped request from NATS, ready for the
// shell to validate and convert into a typed engine request.
type RawRequest struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps a NATS subject to an action kind.
type SubjectConfig struct {
	Subject      string
	ActionKind   string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "perp.actions.deposit.>", ActionKind: KindDeposit, ConsumerName: "engine-deposits", StreamName: "PERP_ACTIONS"},
		{Subject: "perp.actions.withdrawal.>", ActionKind: KindWithdrawal, ConsumerName: "engine-withdrawals", StreamName: "PERP_ACTIONS"},
		{Subject: "perp.actions.swap.>", ActionKind: KindSwap, ConsumerName: "engine-swaps", StreamName: "PERP_ACTIONS"},
		{Subject: "perp.actions.order.>", ActionKind: KindOrder, ConsumerName: "engine-orders", StreamName: "PERP_ACTIONS"},
		{Subject: "perp.actions.market_admin.>", ActionKind: KindMarketAdmin, ConsumerName: "engine-admin", StreamName: "PERP_ACTIONS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, requestChan chan<- RawRequest, metrics *observability.Metrics) *NATSSubscriber {
	return &NATSSubscriber{
		js:          js,
		requestChan: requestChan,
		metrics:     metrics,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		kind := cfg.ActionKind
		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			received := time.Now()
			raw := RawRequest{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: received,
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			if ns.metrics != nil {
				ns.metrics.RequestsReceived.WithLabelValues(kind).Inc()
			}

			select {
			case ns.requestChan <- raw:
				if ns.metrics != nil {
					ns.metrics.NATSPullLatency.WithLabelValues(kind).Observe(time.Since(received).Seconds())
				}
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't
// exist. Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "PERP_ACTIONS",
		Subjects:  []string{"perp.actions.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream PERP_ACTIONS: %w", err)
	}
	log.Println("INFO: ensured stream PERP_ACTIONS")
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
