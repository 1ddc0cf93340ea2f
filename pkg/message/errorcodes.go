package message

import "fmt"

// Error severities
const (
	SeverityFailure = "failure"
	SeverityWarning = "warning"
)

// Error categories
const (
	CategoryContent       = "Content"
	CategoryCommunication = "Communication"
	CategoryUnpackaging   = "UnPackaging"
	CategoryProcessing    = "Processing"
)

// ErrorCode represents an ebMS3 / AS4 error code
type ErrorCode struct {
	Code             string
	Severity         string
	ShortDescription string
	Category         string
}

// Predefined ebMS3 and AS4 error codes
var (
	ErrorValueNotRecognized = ErrorCode{
		Code:             "EBMS:0001",
		Severity:         SeverityFailure,
		ShortDescription: "ValueNotRecognized",
		Category:         CategoryContent,
	}

	ErrorFeatureNotSupported = ErrorCode{
		Code:             "EBMS:0002",
		Severity:         SeverityWarning,
		ShortDescription: "FeatureNotSupported",
		Category:         CategoryContent,
	}

	ErrorValueInconsistent = ErrorCode{
		Code:             "EBMS:0003",
		Severity:         SeverityFailure,
		ShortDescription: "ValueInconsistent",
		Category:         CategoryContent,
	}

	ErrorOther = ErrorCode{
		Code:             "EBMS:0004",
		Severity:         SeverityFailure,
		ShortDescription: "Other",
		Category:         CategoryContent,
	}

	ErrorConnectionFailure = ErrorCode{
		Code:             "EBMS:0005",
		Severity:         SeverityFailure,
		ShortDescription: "ConnectionFailure",
		Category:         CategoryCommunication,
	}

	ErrorEmptyMessagePartition = ErrorCode{
		Code:             "EBMS:0006",
		Severity:         SeverityWarning,
		ShortDescription: "EmptyMessagePartitionChannel",
		Category:         CategoryCommunication,
	}

	ErrorMimeInconsistency = ErrorCode{
		Code:             "EBMS:0007",
		Severity:         SeverityFailure,
		ShortDescription: "MimeInconsistency",
		Category:         CategoryUnpackaging,
	}

	ErrorFeatureNotSupportedInconsistently = ErrorCode{
		Code:             "EBMS:0008",
		Severity:         SeverityFailure,
		ShortDescription: "FeatureNotSupportedInconsistently",
		Category:         CategoryUnpackaging,
	}

	ErrorInvalidHeader = ErrorCode{
		Code:             "EBMS:0009",
		Severity:         SeverityFailure,
		ShortDescription: "InvalidHeader",
		Category:         CategoryUnpackaging,
	}

	ErrorProcessingModeMismatch = ErrorCode{
		Code:             "EBMS:0010",
		Severity:         SeverityFailure,
		ShortDescription: "ProcessingModeMismatch",
		Category:         CategoryProcessing,
	}

	ErrorExternalPayloadError = ErrorCode{
		Code:             "EBMS:0011",
		Severity:         SeverityFailure,
		ShortDescription: "ExternalPayloadError",
		Category:         CategoryContent,
	}

	ErrorFailedAuthentication = ErrorCode{
		Code:             "EBMS:0101",
		Severity:         SeverityFailure,
		ShortDescription: "FailedAuthentication",
		Category:         CategoryProcessing,
	}

	ErrorDysfunctionalReliability = ErrorCode{
		Code:             "EBMS:0201",
		Severity:         SeverityFailure,
		ShortDescription: "DysfunctionalReliability",
		Category:         CategoryProcessing,
	}

	ErrorDeliveryFailure = ErrorCode{
		Code:             "EBMS:0202",
		Severity:         SeverityFailure,
		ShortDescription: "DeliveryFailure",
		Category:         CategoryCommunication,
	}

	ErrorMissingReceipt = ErrorCode{
		Code:             "EBMS:0301",
		Severity:         SeverityFailure,
		ShortDescription: "MissingReceipt",
		Category:         CategoryCommunication,
	}

	ErrorInvalidReceipt = ErrorCode{
		Code:             "EBMS:0302",
		Severity:         SeverityFailure,
		ShortDescription: "InvalidReceipt",
		Category:         CategoryCommunication,
	}

	ErrorDecompressionFailure = ErrorCode{
		Code:             "EBMS:0303",
		Severity:         SeverityFailure,
		ShortDescription: "DecompressionFailure",
		Category:         CategoryCommunication,
	}
)

var errorCodes = map[string]ErrorCode{}

func init() {
	for _, c := range []ErrorCode{
		ErrorValueNotRecognized,
		ErrorFeatureNotSupported,
		ErrorValueInconsistent,
		ErrorOther,
		ErrorConnectionFailure,
		ErrorEmptyMessagePartition,
		ErrorMimeInconsistency,
		ErrorFeatureNotSupportedInconsistently,
		ErrorInvalidHeader,
		ErrorProcessingModeMismatch,
		ErrorExternalPayloadError,
		ErrorFailedAuthentication,
		ErrorDysfunctionalReliability,
		ErrorDeliveryFailure,
		ErrorMissingReceipt,
		ErrorInvalidReceipt,
		ErrorDecompressionFailure,
	} {
		errorCodes[c.Code] = c
	}
}

// LookupErrorCode returns the predefined code for "EBMS:nnnn".
func LookupErrorCode(code string) (ErrorCode, bool) {
	c, ok := errorCodes[code]
	return c, ok
}

// ErrorCodes returns every predefined code.
func ErrorCodes() []ErrorCode {
	out := make([]ErrorCode, 0, len(errorCodes))
	for _, c := range errorCodes {
		out = append(out, c)
	}
	return out
}

// Build returns the wire Error for this code.
func (c ErrorCode) Build(refToMessageInError, detail string) Error {
	return Error{
		ErrorCode:           c.Code,
		Severity:            c.Severity,
		Category:            c.Category,
		ShortDescription:    c.ShortDescription,
		Origin:              "ebMS",
		RefToMessageInError: refToMessageInError,
		Description:         c.ShortDescription,
		ErrorDetail:         detail,
	}
}

func (c ErrorCode) String() string {
	return fmt.Sprintf("%s %s", c.Code, c.ShortDescription)
}
