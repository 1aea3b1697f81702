package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
	"github.com/noah-isme/uni-enrollment-api/pkg/jobs"
)

// JobTypeEnrollmentStatus tags enrollment status events on queues.
const JobTypeEnrollmentStatus = "enrollment.status"

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, queue string, v interface{}, attrs map[string]string) (string, error)
}

// EnabledChannels keeps the known channel names of configured, in order and without repeats.
func EnabledChannels(configured []string) []string {
	var enabled []string
	seen := make(map[string]bool, len(configured))
	for _, ch := range configured {
		if seen[ch] {
			continue
		}
		switch ch {
		case ChannelMail, ChannelDatabase:
			seen[ch] = true
			enabled = append(enabled, ch)
		}
	}
	return enabled
}

func deliveryID(event models.EnrollmentStatusEvent, channel string) string {
	return event.EventID + ":" + channel
}

// QueueDispatcher publishes events onto the in-process job queue.
type QueueDispatcher struct {
	queue    jobEnqueuer
	channels []string
	metrics  *MetricsService
}

// NewQueueDispatcher constructs a dispatcher for the in-process driver.
func NewQueueDispatcher(queue jobEnqueuer, channels []string, metrics *MetricsService) *QueueDispatcher {
	return &QueueDispatcher{queue: queue, channels: EnabledChannels(channels), metrics: metrics}
}

// Publish enqueues one job per channel without blocking.
func (d *QueueDispatcher) Publish(_ context.Context, event models.EnrollmentStatusEvent) error {
	var errs []error
	for _, ch := range d.channels {
		job := jobs.Job{
			ID:      deliveryID(event, ch),
			Type:    JobTypeEnrollmentStatus,
			Payload: models.NotificationDelivery{Channel: ch, Event: event},
		}
		if err := d.queue.TryEnqueue(job); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s delivery: %w", ch, err))
		}
	}
	err := errors.Join(errs...)
	d.metrics.RecordPublish("memory", err)
	if err != nil {
		return fmt.Errorf("enqueue enrollment event: %w", err)
	}
	return nil
}

// BrokerDispatcher publishes events to a message broker queue.
type BrokerDispatcher struct {
	broker   jsonPublisher
	queue    string
	channels []string
	metrics  *MetricsService
}

// NewBrokerDispatcher constructs a dispatcher for the rabbitmq driver.
func NewBrokerDispatcher(broker jsonPublisher, queue string, channels []string, metrics *MetricsService) *BrokerDispatcher {
	return &BrokerDispatcher{broker: broker, queue: queue, channels: EnabledChannels(channels), metrics: metrics}
}

// Publish sends one JSON message per channel to the configured queue.
func (d *BrokerDispatcher) Publish(ctx context.Context, event models.EnrollmentStatusEvent) error {
	var errs []error
	for _, ch := range d.channels {
		_, err := d.broker.PublishJSON(ctx, d.queue, models.NotificationDelivery{Channel: ch, Event: event}, map[string]string{
			"event_type": JobTypeEnrollmentStatus,
			"event_id":   event.EventID,
			"channel":    ch,
			"status":     string(event.Status),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s delivery: %w", ch, err))
		}
	}
	err := errors.Join(errs...)
	d.metrics.RecordPublish("rabbitmq", err)
	if err != nil {
		return fmt.Errorf("publish enrollment event: %w", err)
	}
	return nil
}
