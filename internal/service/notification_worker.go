package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
	"github.com/noah-isme/uni-enrollment-api/pkg/jobs"
	"github.com/noah-isme/uni-enrollment-api/pkg/mailer"
	"github.com/noah-isme/uni-enrollment-api/pkg/mq"
)

// Notification channels.
const (
	ChannelMail     = "mail"
	ChannelDatabase = "database"
)

type notificationWriter interface {
	Create(ctx context.Context, n *models.Notification) error
}

// NotificationWorker delivers enrollment status events, one channel per delivery.
type NotificationWorker struct {
	mailer   mailer.Mailer
	store    notificationWriter
	channels map[string]bool
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationWorker builds a worker. Unknown channel names are ignored.
func NewNotificationWorker(m mailer.Mailer, store notificationWriter, channels []string, metrics *MetricsService, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	enabled := map[string]bool{}
	for _, ch := range EnabledChannels(channels) {
		enabled[ch] = true
	}
	for _, ch := range channels {
		if !enabled[ch] {
			logger.Warn("ignoring unknown notification channel", zap.String("channel", ch))
		}
	}
	return &NotificationWorker{mailer: m, store: store, channels: enabled, metrics: metrics, logger: logger}
}

// Deliver sends the event on the delivery's channel. A failure affects that
// channel only, so a retry never repeats a channel that already succeeded.
// The database record is keyed by the event id and is stored at most once.
func (w *NotificationWorker) Deliver(ctx context.Context, delivery models.NotificationDelivery) error {
	event := delivery.Event
	if !w.channels[delivery.Channel] {
		w.logger.Warn("dropping delivery for disabled channel",
			zap.String("channel", delivery.Channel),
			zap.String("event_id", event.EventID),
		)
		return nil
	}

	var err error
	switch delivery.Channel {
	case ChannelMail:
		err = w.mailer.Send(ctx, EnrollmentStatusMail(event))
	case ChannelDatabase:
		err = w.storeRecord(ctx, event)
	}
	w.metrics.RecordDelivery(delivery.Channel, err)
	if err != nil {
		return fmt.Errorf("%s channel: %w", delivery.Channel, err)
	}
	w.logger.Debug("notification delivered",
		zap.String("channel", delivery.Channel),
		zap.String("event_id", event.EventID),
		zap.String("user_id", event.UserID),
	)
	return nil
}

// HandleJob adapts Deliver to the in-process queue.
func (w *NotificationWorker) HandleJob(ctx context.Context, job jobs.Job) error {
	delivery, ok := job.Payload.(models.NotificationDelivery)
	if !ok {
		w.logger.Error("dropping job with unexpected payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return w.Deliver(ctx, delivery)
}

// HandleGiveUp records a notification the queue stopped retrying.
func (w *NotificationWorker) HandleGiveUp(job jobs.Job, err error) {
	fields := []zap.Field{zap.String("job_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err)}
	if delivery, ok := job.Payload.(models.NotificationDelivery); ok {
		fields = append(fields,
			zap.String("channel", delivery.Channel),
			zap.String("enrollment_id", delivery.Event.EnrollmentID),
			zap.String("user_id", delivery.Event.UserID),
			zap.String("status", string(delivery.Event.Status)),
		)
	}
	w.logger.Error("enrollment notification abandoned", fields...)
}

// HandleMessage adapts Deliver to broker subscriptions. Undecodable messages
// are dropped rather than redelivered.
func (w *NotificationWorker) HandleMessage(ctx context.Context, msg mq.Message) error {
	var delivery models.NotificationDelivery
	if err := json.Unmarshal(msg.Data, &delivery); err != nil || delivery.Channel == "" {
		w.logger.Error("dropping undecodable message", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	return w.Deliver(ctx, delivery)
}

func (w *NotificationWorker) storeRecord(ctx context.Context, event models.EnrollmentStatusEvent) error {
	data, err := json.Marshal(models.NotificationData{
		Status:  event.Status,
		Course:  event.CourseTitle,
		Message: fmt.Sprintf("Your enrollment for '%s' has been %s.", event.CourseTitle, event.Status),
	})
	if err != nil {
		return err
	}
	return w.store.Create(ctx, &models.Notification{
		ID:        event.EventID,
		UserID:    event.UserID,
		Type:      models.NotificationTypeEnrollmentStatus,
		Data:      data,
		CreatedAt: event.OccurredAt,
	})
}

// EnrollmentStatusMail renders the student-facing mail for a decision.
func EnrollmentStatusMail(event models.EnrollmentStatusEvent) mailer.Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", event.UserName)
	fmt.Fprintf(&body, "Your enrollment for the course '%s' has been %s.\n\n", event.CourseTitle, event.Status)
	body.WriteString("Thank you for using our University Enrollment System.\n")

	return mailer.Message{
		ToAddress: event.UserEmail,
		ToName:    event.UserName,
		Subject:   "Enrollment " + capitalise(string(event.Status)),
		Body:      body.String(),
	}
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
