// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package as4 packages PEPPOL business documents as AS4 messages and
interprets the signals returned for them.

# Creating messages

	p := as4.NewPackager(as4.WithSigner(pkiManager), as4.WithLogger(logger))
	msg, err := p.CreateMessage(ctx, doc, senderCert, as4.ReceiverInfo{
	    Endpoint:                 "https://ap.example.com/as4",
	    DeliveryReceiptRequested: true,
	})
	body, contentType, err := msg.Serialize()

The document is wrapped in an SBDH and sent as the single attachment with
content id "payload". The envelope carries:

  - an ebMS3 UserMessage with ISO 6523 PartyIds, the PROCESSID as Service
    and the DOCUMENTID as Action
  - a WS-Security header with a five minute wsu:Timestamp and, when a
    sender certificate is given, a BinarySecurityToken
  - a WS-ReliableMessaging Sequence with MessageNumber 1 when a delivery
    receipt is requested

Headers are injected into the serialized envelope; malformed XML at that
point aborts packaging. With a Signer configured the envelope is then
XML-DSig signed.

# Responses

ProcessResponse and ProcessHTTPResponse never fail. They report
receipt_received, error_received or parse_error together with the
referenced message id.

# Compliance

ValidateCompliance scores a packaged message. Missing WS-Security headers
and missing attachments are warnings; a missing SOAP envelope, Messaging
header or an unknown transport profile fail the check.
*/
package as4
