package mlr

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Status is the delivery state of a tracked message.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
	StatusNotTracked Status = "not_tracked"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusTimeout
}

// statuses lists every state a tracked record can be in.
var statuses = []Status{StatusPending, StatusDelivered, StatusFailed, StatusTimeout}

const (
	// DefaultDeliveryTimeout is how long a sent message waits for its signal.
	DefaultDeliveryTimeout = 30 * time.Minute

	// RetentionPeriod is how long records are kept after their timeout.
	RetentionPeriod = 24 * time.Hour

	// DefaultDuplicateWindow bounds duplicate detection of received messages.
	DefaultDuplicateWindow = 24 * time.Hour
)

var (
	// ErrInvalidMessageID is returned for an empty message id.
	ErrInvalidMessageID = errors.New("message id is required")
	// ErrInvalidTimeout is returned for a negative delivery timeout.
	ErrInvalidTimeout = errors.New("delivery timeout must not be negative")
)

// TrackingRecord is the delivery state of one sent message.
type TrackingRecord struct {
	MessageID string `json:"message_id"`
	// Sender is the participant that sent the message, if recorded.
	Sender          string    `json:"sender,omitempty"`
	Status          Status    `json:"status"`
	TrackingStarted time.Time `json:"tracking_started"`
	TimeoutAt       time.Time `json:"timeout_at"`
	// CompletedAt is set when a receipt or error settled the record.
	CompletedAt time.Time `json:"completed_at,omitempty"`
	SignalID    string    `json:"signal_id,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
}

// DeliveryTime is the time between tracking start and the settling signal.
func (r TrackingRecord) DeliveryTime() (time.Duration, bool) {
	if r.CompletedAt.IsZero() {
		return 0, false
	}
	return r.CompletedAt.Sub(r.TrackingStarted), true
}

// EffectiveStatus returns the status of rec as observed at now. A pending
// record whose timeout has been reached reads as timed out.
func EffectiveStatus(now time.Time, rec TrackingRecord) Status {
	if rec.Status == StatusPending && !now.Before(rec.TimeoutAt) {
		return StatusTimeout
	}
	return rec.Status
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithMetrics records tracking and signal metrics.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithDuplicateWindow sets how long received message ids are remembered.
func WithDuplicateWindow(d time.Duration) Option {
	return func(t *Tracker) { t.duplicateWindow = d }
}

// Tracker generates and consumes MLR signals and keeps the delivery state
// of sent messages. Records are keyed by message id in a striped map, so
// unrelated messages never contend on the same lock.
type Tracker struct {
	records  *xsync.MapOf[string, TrackingRecord]
	received *xsync.MapOf[string, time.Time]
	// errorCodes counts error codes of every processed error signal, keyed
	// by statisticsCode.
	errorCodes *xsync.MapOf[string, int]

	duplicateWindow time.Duration
	now             func() time.Time
	logger          *slog.Logger
	metrics         *Metrics
}

// New creates an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		records:         xsync.NewMapOf[string, TrackingRecord](),
		received:        xsync.NewMapOf[string, time.Time](),
		errorCodes:      xsync.NewMapOf[string, int](),
		duplicateWindow: DefaultDuplicateWindow,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrackOption sets optional fields of a new tracking record.
type TrackOption func(*TrackingRecord)

// WithSender records the participant that sent the message.
func WithSender(participantID string) TrackOption {
	return func(r *TrackingRecord) {
		r.Sender = participantID
	}
}

// TrackMessageDelivery starts tracking a sent message. Tracking an id again
// replaces its record, as for a retransmission.
func (t *Tracker) TrackMessageDelivery(messageID string, timeout time.Duration, opts ...TrackOption) (TrackingRecord, error) {
	if messageID == "" {
		return TrackingRecord{}, ErrInvalidMessageID
	}
	if timeout < 0 {
		return TrackingRecord{}, fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
	}

	now := t.now().UTC()
	rec := TrackingRecord{
		MessageID:       messageID,
		Status:          StatusPending,
		TrackingStarted: now,
		TimeoutAt:       now.Add(timeout),
	}
	for _, opt := range opts {
		opt(&rec)
	}
	if _, replaced := t.records.LoadAndStore(messageID, rec); replaced {
		t.logger.Info("tracking restarted", slog.String("message_id", messageID))
	} else {
		t.logger.Debug("tracking message delivery",
			slog.String("message_id", messageID),
			slog.Time("timeout_at", rec.TimeoutAt))
	}
	t.metrics.IncrementTracked()
	return rec, nil
}

// GetDeliveryStatus returns the record for messageID, or a record with
// StatusNotTracked when the id is unknown. A pending record past its timeout
// is moved to StatusTimeout by this read.
func (t *Tracker) GetDeliveryStatus(messageID string) TrackingRecord {
	now := t.now()
	var timedOut bool
	rec, ok := t.records.Compute(messageID, func(old TrackingRecord, loaded bool) (TrackingRecord, bool) {
		if !loaded {
			return old, true
		}
		if s := EffectiveStatus(now, old); s != old.Status {
			old.Status = s
			timedOut = true
		}
		return old, false
	})
	if !ok {
		return TrackingRecord{MessageID: messageID, Status: StatusNotTracked}
	}
	if timedOut {
		t.logger.Warn("message delivery timed out",
			slog.String("message_id", messageID),
			slog.Time("timeout_at", rec.TimeoutAt))
		t.metrics.IncrementTransition(StatusTimeout)
	}
	return rec
}

// settle applies a receipt or error signal to a tracked message. It returns
// the resulting record and false when the message is not tracked. Records
// already in a terminal state, including ones whose timeout has passed,
// are left unchanged.
func (t *Tracker) settle(messageID string, to Status, signalID, errorCode string) (TrackingRecord, bool) {
	now := t.now()
	var prev Status
	var timedOut bool
	rec, ok := t.records.Compute(messageID, func(old TrackingRecord, loaded bool) (TrackingRecord, bool) {
		if !loaded {
			return old, true
		}
		prev = EffectiveStatus(now, old)
		if prev.Terminal() {
			timedOut = prev != old.Status
			old.Status = prev
			return old, false
		}
		old.Status = to
		old.CompletedAt = now.UTC()
		old.SignalID = signalID
		old.ErrorCode = errorCode
		return old, false
	})
	if !ok {
		return TrackingRecord{}, false
	}

	if prev.Terminal() {
		t.logger.Warn("signal for settled message ignored",
			slog.String("message_id", messageID),
			slog.String("status", string(prev)),
			slog.String("signal_status", string(to)))
		if timedOut {
			t.metrics.IncrementTransition(StatusTimeout)
		}
		return rec, true
	}

	t.logger.Info("message delivery settled",
		slog.String("message_id", messageID),
		slog.String("status", string(to)),
		slog.String("signal_id", signalID))
	t.metrics.IncrementTransition(to)
	if d, ok := rec.DeliveryTime(); ok {
		t.metrics.ObserveDeliveryTime(d)
	}
	return rec, true
}

// CleanupExpiredTracking evicts records whose timeout lies more than
// RetentionPeriod in the past and forgets received message ids outside the
// duplicate window. It returns the number of evicted tracking records.
func (t *Tracker) CleanupExpiredTracking() int {
	now := t.now()
	removed := 0
	t.records.Range(func(id string, rec TrackingRecord) bool {
		if now.Sub(rec.TimeoutAt) <= RetentionPeriod {
			return true
		}
		t.records.Compute(id, func(old TrackingRecord, loaded bool) (TrackingRecord, bool) {
			if loaded && now.Sub(old.TimeoutAt) > RetentionPeriod {
				removed++
				return old, true
			}
			return old, !loaded
		})
		return true
	})

	t.received.Range(func(id string, at time.Time) bool {
		if now.Sub(at) >= t.duplicateWindow {
			t.received.Delete(id)
		}
		return true
	})

	if removed > 0 {
		t.logger.Info("evicted expired tracking records", slog.Int("count", removed))
	}
	return removed
}

// MarkReceived records an incoming message id and reports whether it was
// already received within the duplicate window.
func (t *Tracker) MarkReceived(messageID string) (duplicate bool) {
	now := t.now()
	t.received.Compute(messageID, func(seen time.Time, loaded bool) (time.Time, bool) {
		if loaded && now.Sub(seen) < t.duplicateWindow {
			duplicate = true
			return seen, false
		}
		return now, false
	})
	if duplicate {
		t.logger.Warn("duplicate message received", slog.String("message_id", messageID))
	}
	return duplicate
}

// Len returns the number of tracked messages.
func (t *Tracker) Len() int {
	return t.records.Size()
}
