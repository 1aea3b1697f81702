package models

import "time"

// SystemMetrics is an aggregated snapshot of service instrumentation.
type SystemMetrics struct {
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	DBQueryCount             uint64            `json:"db_query_count"`
	AverageDBQueryDurationMs float64           `json:"average_db_query_duration_ms"`
	EnrollmentTransitions    map[string]uint64 `json:"enrollment_transitions"`
	NotificationsDelivered   uint64            `json:"notifications_delivered"`
	NotificationsFailed      uint64            `json:"notifications_failed"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
