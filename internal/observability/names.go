// Package observability provides OpenTelemetry metrics, tracing and log
// correlation for the forms service.
package observability

import (
	"github.com/formbricks/forms/internal/datatypes"
)

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameSnapshotDuration      = "forms_engine_snapshot_duration_seconds"
	MetricNameRuleDiagnostics       = "forms_engine_rule_diagnostics_total"
	MetricNameValueSetsApplied      = "forms_engine_value_sets_applied_total"
	MetricNameNavigationErrors      = "forms_engine_navigation_errors_total"
	MetricNameSubmits               = "forms_session_submits_total"
	MetricNameSaves                 = "forms_session_saves_total"
	MetricNameLiveSessions          = "forms_live_sessions"
	MetricNameEventsPublished       = "forms_events_published_total"
	MetricNameEventsDiscarded       = "forms_events_discarded_total"
	MetricNameFanOutDuration        = "forms_message_publisher_fan_out_duration_seconds"
	MetricNameEventChannelDepth     = "forms_event_channel_depth"
	MetricNameRiverQueueDepth       = "forms_river_queue_depth"
	MetricNameDeliveryJobsEnqueued  = "forms_submission_jobs_enqueued_total"
	MetricNameDeliveryProviderError = "forms_submission_provider_errors_total"
	MetricNameDeliveries            = "forms_submission_deliveries_total"
	MetricNameDeliveryDuration      = "forms_submission_delivery_duration_seconds"
	MetricNameCacheHits             = "forms_cache_hits_total"
	MetricNameCacheMisses           = "forms_cache_misses_total"
	MetricNameRequestBodyTooLarge   = "forms_api_request_body_too_large_total"
	MetricNameRateLimited           = "forms_api_rate_limited_total"
)

// Attribute keys.
const (
	AttrEventType = "event_type"
	AttrReason    = "reason"
	AttrStatus    = "status"
	AttrOutcome   = "outcome"
	AttrKind      = "kind"
)

// AllowedOutcomes for session save/submit counters.
var AllowedOutcomes = map[string]bool{
	"success":           true,
	"validation_failed": true,
	"persist_failed":    true,
}

// AllowedDiagnosticKinds for forms_engine_rule_diagnostics_total.
var AllowedDiagnosticKinds = map[string]bool{
	"invalid_condition_reference": true,
	"unknown_operator":            true,
	"invalid_action":              true,
	"unknown_set_value_target":    true,
}

// AllowedProviderReasons for forms_submission_provider_errors_total.
var AllowedProviderReasons = map[string]bool{
	"template_load_failed": true,
	"enqueue_failed":       true,
}

// AllowedDeliveryStatuses for forms_submission_deliveries_total and the delivery duration histogram.
var AllowedDeliveryStatuses = map[string]bool{
	"success":      true,
	"retry":        true,
	"failed_final": true,
}

// AllowedCacheNames for cache hit/miss counters.
var AllowedCacheNames = map[string]bool{
	"template": true,
}

// NormalizeEventType returns eventType if allowed, otherwise "unknown".
func NormalizeEventType(eventType string) string {
	if datatypes.IsValidEventType(eventType) {
		return eventType
	}

	return "unknown"
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeStatus returns status if in AllowedDeliveryStatuses, otherwise "other".
func NormalizeStatus(status string) string {
	return NormalizeReason(status, AllowedDeliveryStatuses)
}

// NormalizeCacheName returns name if in AllowedCacheNames, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, AllowedCacheNames)
}
