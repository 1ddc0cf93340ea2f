package mlr

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-peppol/pkg/message"
)

// SignalType names the kind of an MLR signal.
type SignalType string

const (
	SignalReceipt SignalType = "Receipt"
	SignalError   SignalType = "Error"
)

// ProcessingStatus is the outcome of processing an incoming signal.
type ProcessingStatus string

const (
	StatusReceiptReceived ProcessingStatus = "receipt_received"
	StatusErrorReceived   ProcessingStatus = "error_received"
	StatusParseError      ProcessingStatus = "parse_error"
)

const signalTimestampTTL = 5 * time.Minute

var (
	// ErrUnknownErrorCode is returned for a code outside the EBMS code set.
	ErrUnknownErrorCode = errors.New("unknown EBMS error code")
	// ErrInvalidSeverity is returned for a severity other than failure or warning.
	ErrInvalidSeverity = errors.New("invalid error severity")
)

// Signal is a generated MLR signal and its SOAP envelope.
type Signal struct {
	Type           SignalType
	MessageID      string
	RefToMessageID string
	Timestamp      time.Time
	Message        *message.SignalMessage
	Envelope       []byte
}

// SignalErrorDetail is one error reported by an incoming error signal.
type SignalErrorDetail struct {
	Code        string `json:"code"`
	Severity    string `json:"severity,omitempty"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// SignalResult is the interpretation of an incoming signal.
type SignalResult struct {
	SignalType       SignalType          `json:"signal_type,omitempty"`
	ProcessingStatus ProcessingStatus    `json:"processing_status"`
	MessageID        string              `json:"message_id,omitempty"`
	RefToMessageID   string              `json:"ref_to_message_id,omitempty"`
	Timestamp        time.Time           `json:"timestamp,omitempty"`
	Errors           []SignalErrorDetail `json:"errors"`
	// NonRepudiation reports whether a receipt carried digest references.
	NonRepudiation bool `json:"non_repudiation"`
	// Tracking is the delivery record after the update, nil when the
	// referenced message is not tracked.
	Tracking *TrackingRecord `json:"tracking,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// GenerateReceiptSignal builds a receipt for the message with id
// originalID. nri may be nil for a plain reception-awareness receipt.
func (t *Tracker) GenerateReceiptSignal(originalID string, nri *message.NonRepudiationInformation) (*Signal, error) {
	if originalID == "" {
		return nil, ErrInvalidMessageID
	}
	sm := message.NewReceipt(originalID, nri)
	return t.signal(SignalReceipt, sm)
}

// GenerateErrorSignal builds an error signal. originalID may be empty when
// the message in error could not be identified; RefToMessageId is then
// omitted. An empty severity keeps the severity defined for the code.
func (t *Tracker) GenerateErrorSignal(originalID, code, detail, severity string) (*Signal, error) {
	ec, ok := message.LookupErrorCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownErrorCode, code)
	}
	switch strings.ToLower(severity) {
	case "":
	case message.SeverityFailure, message.SeverityWarning:
		ec.Severity = strings.ToLower(severity)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, severity)
	}

	sm := message.NewError(originalID, ec, detail)
	if originalID == "" {
		t.logger.Warn("error signal without referenced message", slog.String("error_code", ec.Code))
	}
	return t.signal(SignalError, sm)
}

func (t *Tracker) signal(typ SignalType, sm *message.SignalMessage) (*Signal, error) {
	now := t.now().UTC()
	sm.MessageInfo.Timestamp = now

	env := &message.Envelope{
		Security: &message.Security{Timestamp: &message.Timestamp{
			ID:      "TS-" + uuid.NewString(),
			Created: now,
			Expires: now.Add(signalTimestampTTL),
		}},
		Messaging: &message.Messaging{ID: "id-" + uuid.NewString(), SignalMessage: sm},
		BodyID:    "id-" + uuid.NewString(),
	}
	raw, err := env.Bytes()
	if err != nil {
		return nil, err
	}

	t.logger.Debug("generated MLR signal",
		slog.String("signal_type", string(typ)),
		slog.String("message_id", sm.MessageInfo.MessageId),
		slog.String("ref_to_message_id", sm.MessageInfo.RefToMessageId))

	return &Signal{
		Type:           typ,
		MessageID:      sm.MessageInfo.MessageId,
		RefToMessageID: sm.MessageInfo.RefToMessageId,
		Timestamp:      now,
		Message:        sm,
		Envelope:       raw,
	}, nil
}

// ProcessIncomingSignal interprets a received signal and, when it references
// a message, settles that message's delivery record: a receipt marks it
// delivered and an error marks it failed. It never fails; input that cannot
// be interpreted yields StatusParseError.
func (t *Tracker) ProcessIncomingSignal(raw []byte) *SignalResult {
	res := decodeSignal(raw)

	switch {
	case res.ProcessingStatus == StatusParseError:
		t.logger.Warn("unparseable MLR signal", slog.String("error", res.Error))
	case res.RefToMessageID == "":
		t.logger.Warn("MLR signal without RefToMessageId",
			slog.String("signal_id", res.MessageID),
			slog.String("signal_type", string(res.SignalType)))
	default:
		to, code := StatusDelivered, ""
		if res.SignalType == SignalError {
			to, code = StatusFailed, res.Errors[0].Code
		}
		if rec, ok := t.settle(res.RefToMessageID, to, res.MessageID, code); ok {
			res.Tracking = &rec
		} else {
			t.logger.Info("MLR signal for untracked message",
				slog.String("ref_to_message_id", res.RefToMessageID),
				slog.String("signal_type", string(res.SignalType)))
		}
	}

	for _, e := range res.Errors {
		t.errorCodes.Compute(statisticsCode(e.Code), func(n int, _ bool) (int, bool) { return n + 1, false })
	}
	t.metrics.IncrementSignal(res.SignalType, res.ProcessingStatus)
	return res
}

// statisticsCode folds codes outside the ebMS catalogue into OtherErrorCode
// so the statistics table stays bounded.
func statisticsCode(code string) string {
	if _, ok := message.LookupErrorCode(code); ok {
		return code
	}
	return OtherErrorCode
}

func decodeSignal(raw []byte) *SignalResult {
	res := &SignalResult{Errors: []SignalErrorDetail{}}
	doc, err := message.ParseDocument(raw)
	if err != nil {
		res.ProcessingStatus = StatusParseError
		res.Error = err.Error()
		return res
	}
	el := message.FindMessaging(doc.Root())
	if el == nil {
		res.ProcessingStatus = StatusParseError
		res.Error = message.ErrNoMessaging.Error()
		return res
	}
	sm := message.DecodeMessaging(el).SignalMessage
	if sm == nil {
		res.ProcessingStatus = StatusParseError
		res.Error = "no SignalMessage"
		return res
	}

	res.MessageID = sm.MessageInfo.MessageId
	res.RefToMessageID = sm.MessageInfo.RefToMessageId
	res.Timestamp = sm.MessageInfo.Timestamp

	switch {
	case len(sm.Errors) > 0:
		res.SignalType = SignalError
		res.ProcessingStatus = StatusErrorReceived
		for _, e := range sm.Errors {
			res.Errors = append(res.Errors, SignalErrorDetail{
				Code:        e.ErrorCode,
				Severity:    e.Severity,
				Category:    e.Category,
				Description: firstNonEmpty(e.Description, e.ShortDescription),
				Detail:      e.ErrorDetail,
			})
		}
		if res.RefToMessageID == "" {
			res.RefToMessageID = sm.Errors[0].RefToMessageInError
		}
	case sm.Receipt != nil:
		res.SignalType = SignalReceipt
		res.ProcessingStatus = StatusReceiptReceived
		res.NonRepudiation = sm.Receipt.NonRepudiation != nil && len(sm.Receipt.NonRepudiation.References) > 0
	default:
		res.ProcessingStatus = StatusParseError
		res.Error = "signal carries neither Receipt nor Error"
	}
	return res
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
