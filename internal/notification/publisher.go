package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/daybook-io/daybook/internal/domain"
	"github.com/daybook-io/daybook/pkg/kafka"
	"github.com/daybook-io/daybook/pkg/logger"
)

// Publisher dispatches notification events after lifecycle transitions.
// Dispatch is fire-and-forget: failures are logged and never propagate to
// the transition that triggered them.
type Publisher interface {
	PublishBookingEvent(ctx context.Context, eventType string, booking *domain.Booking)
	PublishCertificateEvent(ctx context.Context, eventType string, code *domain.Code)
	Close()
}

const (
	topicBookings     = "daybook.bookings"
	topicCertificates = "daybook.certificates"
)

// KafkaPublisher publishes notification events to Kafka
type KafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewKafkaPublisher creates a Kafka-backed publisher
func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.Get()
	}
	return &KafkaPublisher{producer: producer, log: log}
}

// PublishBookingEvent publishes a booking lifecycle event
func (p *KafkaPublisher) PublishBookingEvent(ctx context.Context, eventType string, booking *domain.Booking) {
	event := domain.BookingEvent{
		Type:           eventType,
		BookingID:      booking.ID,
		ActivityID:     booking.ActivityID,
		CustomerEmail:  booking.Customer.Email,
		NumberOfPeople: booking.NumberOfPeople,
		ChargedCents:   booking.ChargedCents,
		Currency:       booking.Currency,
		OccurredAt:     time.Now(),
	}

	err := p.producer.ProduceAsync(ctx, topicBookings, booking.ID, event, func(err error) {
		p.log.Error("failed to deliver booking event",
			zap.String("type", eventType),
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	})
	if err != nil {
		p.log.Error("failed to publish booking event",
			zap.String("type", eventType),
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}
}

// PublishCertificateEvent publishes a certificate lifecycle event
func (p *KafkaPublisher) PublishCertificateEvent(ctx context.Context, eventType string, code *domain.Code) {
	event := domain.CertificateEvent{
		Type:       eventType,
		Code:       code.Code,
		ValueCents: code.InitialValueCents,
		Currency:   code.Currency,
		OccurredAt: time.Now(),
	}

	err := p.producer.ProduceAsync(ctx, topicCertificates, code.Code, event, func(err error) {
		p.log.Error("failed to deliver certificate event",
			zap.String("type", eventType),
			zap.String("code", code.Code),
			zap.Error(err),
		)
	})
	if err != nil {
		p.log.Error("failed to publish certificate event",
			zap.String("type", eventType),
			zap.String("code", code.Code),
			zap.Error(err),
		)
	}
}

// Close flushes buffered events and shuts down the producer
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.producer.Flush(ctx); err != nil {
		p.log.Warn("failed to flush pending events", zap.Error(err))
	}
	p.producer.Close()
}

// NoOpPublisher discards all events. Used when Kafka is disabled.
type NoOpPublisher struct{}

// NewNoOpPublisher creates a publisher that does nothing
func NewNoOpPublisher() *NoOpPublisher { return &NoOpPublisher{} }

func (p *NoOpPublisher) PublishBookingEvent(ctx context.Context, eventType string, booking *domain.Booking) {
}

func (p *NoOpPublisher) PublishCertificateEvent(ctx context.Context, eventType string, code *domain.Code) {
}

func (p *NoOpPublisher) Close() {}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*NoOpPublisher)(nil)
)
