package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SubmissionEvent describes one step in the life of a submission
type SubmissionEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SessionID      string                 `json:"session_id,omitempty"`
	Generation     uint64                 `json:"generation"`
	FileName       string                 `json:"file_name,omitempty"`
	Facet          string                 `json:"facet,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of submission event
type EventType string

const (
	// SubmissionStarted when the orchestrator enters Processing
	SubmissionStarted EventType = "submission_started"
	// FacetSettled when one backend call finishes, successfully or not
	FacetSettled EventType = "facet_settled"
	// SubmissionCompleted when all three facets succeeded
	SubmissionCompleted EventType = "submission_completed"
	// SubmissionFailed when encoding or any facet failed
	SubmissionFailed EventType = "submission_failed"
	// SubmissionSuperseded when a settlement arrived for a cancelled submission
	SubmissionSuperseded EventType = "submission_superseded"
	// SessionReset when the orchestrator returns to Idle
	SessionReset EventType = "session_reset"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event SubmissionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event SubmissionEvent)
}

// LoggingObserver logs submission events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles submission events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event SubmissionEvent) {
	fields := logrus.Fields{
		"event_type":  event.EventType,
		"session_id":  event.SessionID,
		"generation":  event.Generation,
		"duration_ms": event.ProcessingTime.Milliseconds(),
		"success":     event.Success,
	}
	if event.FileName != "" {
		fields["file_name"] = event.FileName
	}
	if event.Facet != "" {
		fields["facet"] = event.Facet
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case SubmissionStarted:
		entry.Info("Submission started")
	case FacetSettled:
		if event.Success {
			entry.Debug("Facet settled")
		} else {
			entry.Warn("Facet failed")
		}
	case SubmissionCompleted:
		entry.Info("Submission completed")
	case SubmissionFailed:
		entry.Error("Submission failed")
	case SubmissionSuperseded:
		entry.Debug("Discarded settlement of superseded submission")
	case SessionReset:
		entry.Info("Session reset")
	default:
		entry.Info("Submission event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from submission events
type MetricsObserver struct {
	mu                    sync.RWMutex
	totalSubmissions      int64
	completedSubmissions  int64
	failedSubmissions     int64
	supersededSubmissions int64
	resets                int64
	facetFailures         map[string]int64
	totalProcessingTime   time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		facetFailures: make(map[string]int64),
	}
}

// OnEvent handles submission events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event SubmissionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case SubmissionStarted:
		o.totalSubmissions++
	case FacetSettled:
		if !event.Success && event.Facet != "" {
			o.facetFailures[event.Facet]++
		}
	case SubmissionCompleted:
		o.completedSubmissions++
		o.totalProcessingTime += event.ProcessingTime
	case SubmissionFailed:
		o.failedSubmissions++
	case SubmissionSuperseded:
		o.supersededSubmissions++
	case SessionReset:
		o.resets++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.completedSubmissions > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.completedSubmissions)
	}

	facetFailures := make(map[string]int64, len(o.facetFailures))
	for k, v := range o.facetFailures {
		facetFailures[k] = v
	}

	return map[string]interface{}{
		"total_submissions":      o.totalSubmissions,
		"completed_submissions":  o.completedSubmissions,
		"failed_submissions":     o.failedSubmissions,
		"superseded_submissions": o.supersededSubmissions,
		"resets":                 o.resets,
		"facet_failures":         facetFailures,
		"avg_processing_time_ms": avgProcessingTime.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event.
// Observers run concurrently and never block the caller.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event SubmissionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		go func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(context.WithoutCancel(ctx), event)
		}(observer)
	}
}
