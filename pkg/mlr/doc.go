// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package mlr implements PEPPOL Message Level Responses: it generates and
consumes AS4 receipt and error signals and tracks the delivery of sent
messages.

# Delivery tracking

Every sent message is tracked from the moment it leaves the gateway:

	t := mlr.New(mlr.WithLogger(logger), mlr.WithMetrics(mlr.NewMetrics(reg)))
	t.TrackMessageDelivery(msg.MessageID, mlr.DefaultDeliveryTimeout)

	res := t.ProcessIncomingSignal(raw)
	rec := t.GetDeliveryStatus(msg.MessageID)

A record starts pending and ends in exactly one terminal state:

	pending -> delivered  a receipt references the message
	pending -> failed     an error signal references the message
	pending -> timeout    the record is read after its timeout

Timeouts are evaluated when a record is read, using EffectiveStatus, so the
tracker needs no timer goroutine. Signals arriving for a record that is
already terminal do not change it. CleanupExpiredTracking removes records
24 hours after their timeout and must be called periodically by the owner.

# Signals

GenerateReceiptSignal and GenerateErrorSignal build SOAP envelopes carrying
an eb:SignalMessage. Error codes are restricted to the EBMS code set.
ProcessIncomingSignal never fails: unparseable input is reported with
processing status parse_error.

# Duplicate detection

MarkReceived remembers incoming message ids for a configurable window and
reports redeliveries.
*/
package mlr
