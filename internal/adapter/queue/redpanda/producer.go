// Package redpanda publishes analysis events to a Redpanda/Kafka topic.
//
// Every stored analysis produces one JSON record keyed by project name so
// that events for the same project stay ordered within a partition.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
)

const (
	// TopicAnalyses is the default topic for analysis events.
	TopicAnalyses = "airdrop-analyses"
	// EventAnalysisStored is the event_type header of every record.
	EventAnalysisStored = "analysis.stored"
)

// kafkaClient is the part of *kgo.Client the producer uses.
type kafkaClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
	Close()
}

// AnalysisEvent is the record value.
type AnalysisEvent struct {
	EventID         string    `json:"event_id"`
	ProjectID       string    `json:"project_id"`
	ProjectName     string    `json:"project_name"`
	ProjectCreated  bool      `json:"project_created"`
	AnalysisID      string    `json:"analysis_id"`
	PostID          string    `json:"post_id"`
	PostURL         string    `json:"post_url,omitempty"`
	PostDuplicate   bool      `json:"post_duplicate"`
	LegitimacyScore int       `json:"legitimacy_score"`
	PotentialScore  int       `json:"potential_score"`
	OverallRating   int       `json:"overall_rating"`
	RiskLevel       string    `json:"risk_level"`
	Model           string    `json:"model"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// NewAnalysisEvent builds the event for a stored analysis.
func NewAnalysisEvent(a domain.AnalyzedPost, out domain.StoreOutcome) AnalysisEvent {
	s := domain.ScoreAssessment(a.Assessment)
	return AnalysisEvent{
		EventID:         uuid.NewString(),
		ProjectID:       out.ProjectID,
		ProjectName:     a.Assessment.ProjectName(),
		ProjectCreated:  out.ProjectCreated,
		AnalysisID:      out.AnalysisID,
		PostID:          a.Post.ID,
		PostURL:         a.Post.URL,
		PostDuplicate:   out.PostDuplicate,
		LegitimacyScore: s.Legitimacy,
		PotentialScore:  s.Potential,
		OverallRating:   s.Overall,
		RiskLevel:       a.Assessment.RiskLevel,
		Model:           a.Model,
		AnalyzedAt:      a.AnalyzedAt,
	}
}

// Producer publishes analysis events and implements domain.AnalysisPublisher.
type Producer struct {
	client kafkaClient
	topic  string
}

var _ domain.AnalysisPublisher = (*Producer)(nil)

// NewProducer connects to brokers and makes sure topic exists.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	if topic == "" {
		topic = TopicAnalyses
	}
	slog.Info("creating redpanda producer", slog.Any("brokers", brokers), slog.String("topic", topic))

	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	k := kotel.NewKotel(kotel.WithTracer(tracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.DialTimeout(10*time.Second),
		kgo.WithHooks(k.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", topic),
			slog.Any("error", err))
	}
	return newProducer(client, topic), nil
}

func newProducer(c kafkaClient, topic string) *Producer {
	return &Producer{client: c, topic: topic}
}

// Topic returns the topic records are produced to.
func (p *Producer) Topic() string { return p.topic }

// PublishAnalysis produces one event and waits for the broker ack.
func (p *Producer) PublishAnalysis(ctx context.Context, a domain.AnalyzedPost, out domain.StoreOutcome) error {
	ev := NewAnalysisEvent(a, out)
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=redpanda.publish_marshal: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.ProjectName),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventAnalysisStored)},
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "project_id", Value: []byte(ev.ProjectID)},
			{Key: "analysis_id", Value: []byte(ev.AnalysisID)},
		},
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		observability.RecordEventPublish(false)
		observability.Logger(ctx).Error("failed to produce analysis event",
			slog.String("topic", p.topic),
			slog.String("analysis_id", ev.AnalysisID),
			slog.Any("error", err))
		return fmt.Errorf("op=redpanda.publish: %w", err)
	}
	observability.RecordEventPublish(true)
	observability.Logger(ctx).Info("analysis event produced",
		slog.String("topic", p.topic),
		slog.String("project", ev.ProjectName),
		slog.String("analysis_id", ev.AnalysisID))
	return nil
}

// Close flushes and closes the client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
