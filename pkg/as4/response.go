package as4

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/sirosfoundation/go-peppol/pkg/message"
	"github.com/sirosfoundation/go-peppol/pkg/mime"
)

// ResponseStatus classifies a response to a sent message.
type ResponseStatus string

const (
	StatusReceiptReceived ResponseStatus = "receipt_received"
	StatusErrorReceived   ResponseStatus = "error_received"
	StatusParseError      ResponseStatus = "parse_error"
)

// ResponseResult is the interpretation of a synchronous AS4 response.
type ResponseResult struct {
	Status ResponseStatus `json:"status"`
	// SignalID is the MessageId of the signal itself.
	SignalID       string    `json:"signal_id,omitempty"`
	RefToMessageID string    `json:"ref_to_message_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	// ErrorCode and ErrorDetail describe the first reported error.
	ErrorCode   string          `json:"error_code,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	Errors      []message.Error `json:"errors,omitempty"`
	// Error describes why the response could not be interpreted.
	Error  string                 `json:"error,omitempty"`
	Signal *message.SignalMessage `json:"-"`
}

// ProcessResponse interprets a raw SOAP response. It never fails; input that
// cannot be interpreted yields StatusParseError.
func (p *Packager) ProcessResponse(raw []byte) *ResponseResult {
	res := processResponse(raw)
	attrs := []any{
		slog.String("status", string(res.Status)),
		slog.String("ref_to_message_id", res.RefToMessageID),
	}
	switch res.Status {
	case StatusParseError:
		p.logger.Warn("unparseable AS4 response", append(attrs, slog.String("error", res.Error))...)
	case StatusErrorReceived:
		p.logger.Warn("AS4 error signal received", append(attrs, slog.String("error_code", res.ErrorCode))...)
	default:
		p.logger.Debug("AS4 receipt received", attrs...)
	}
	return res
}

// ProcessHTTPResponse unwraps a multipart/related response before
// interpreting it.
func (p *Packager) ProcessHTTPResponse(contentType string, body []byte) *ResponseResult {
	if !isMultipart(contentType) {
		return p.ProcessResponse(body)
	}
	parts, err := mime.Parse(bytes.NewReader(body), contentType)
	if err != nil {
		return &ResponseResult{Status: StatusParseError, Error: err.Error()}
	}
	return p.ProcessResponse(parts.Envelope)
}

func processResponse(raw []byte) *ResponseResult {
	doc, err := message.ParseDocument(raw)
	if err != nil {
		return &ResponseResult{Status: StatusParseError, Error: err.Error()}
	}
	el := message.FindMessaging(doc.Root())
	if el == nil {
		return &ResponseResult{Status: StatusParseError, Error: message.ErrNoMessaging.Error()}
	}
	signal := message.DecodeMessaging(el).SignalMessage
	if signal == nil {
		return &ResponseResult{Status: StatusParseError, Error: "no SignalMessage in response"}
	}

	res := &ResponseResult{
		SignalID:       signal.MessageInfo.MessageId,
		RefToMessageID: signal.MessageInfo.RefToMessageId,
		Timestamp:      signal.MessageInfo.Timestamp,
		Signal:         signal,
	}
	switch {
	case len(signal.Errors) > 0:
		res.Status = StatusErrorReceived
		res.Errors = signal.Errors
		first := signal.Errors[0]
		res.ErrorCode = first.ErrorCode
		res.ErrorDetail = firstNonEmpty(first.ErrorDetail, first.Description, first.ShortDescription)
		if res.RefToMessageID == "" {
			res.RefToMessageID = first.RefToMessageInError
		}
	case signal.Receipt != nil:
		res.Status = StatusReceiptReceived
	default:
		res.Status = StatusParseError
		res.Error = "signal carries neither Receipt nor Error"
	}
	return res
}
