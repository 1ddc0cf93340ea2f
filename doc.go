// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package gopeppol is the messaging core of a PEPPOL access point.

# Overview

go-peppol wraps business documents in a Standard Business Document Header,
packages them as AS4 (ebMS 3.0) user messages, manages the PKI material used
to sign and verify them and tracks message level responses (receipts and
errors) until each message is delivered, fails or times out.

# Specifications Implemented

  - PEPPOL AS4 Profile: https://docs.peppol.eu/edelivery/as4/specification/
  - PEPPOL Envelope (SBDH) 2.0: https://docs.peppol.eu/edelivery/envelope/
  - OASIS AS4 Profile of ebMS 3.0 Version 1.0: https://docs.oasis-open.org/ebxml-msg/ebms/v3.0/profiles/AS4-profile/v1.0/
  - OASIS ebXML Messaging Services v3.0: https://docs.oasis-open.org/ebxml-msg/ebms/v3.0/core/os/
  - WS-Security 1.1.1: https://docs.oasis-open.org/wss/v1.1/
  - XML Signature Syntax and Processing: https://www.w3.org/TR/xmldsig-core1/

# Package Structure

	github.com/sirosfoundation/go-peppol/pkg/peppol      - Participants, schemes and document types
	github.com/sirosfoundation/go-peppol/pkg/sbdh        - SBDH envelope creation, parsing and validation
	github.com/sirosfoundation/go-peppol/pkg/as4         - AS4 packager (user messages, receipts, responses)
	github.com/sirosfoundation/go-peppol/pkg/pki         - CSRs, certificates, signatures and security tokens
	github.com/sirosfoundation/go-peppol/pkg/mlr         - Receipt/error signals and delivery tracking
	github.com/sirosfoundation/go-peppol/pkg/message     - ebMS 3.0 wire types, SOAP encoding and decoding
	github.com/sirosfoundation/go-peppol/pkg/mime        - MIME multipart handling
	github.com/sirosfoundation/go-peppol/pkg/compression - GZIP payload compression
	github.com/sirosfoundation/go-peppol/pkg/compliance  - Compliance reports
	github.com/sirosfoundation/go-peppol/pkg/transport   - HTTPS transport with TLS 1.2/1.3

The access point itself lives in internal/gateway (component lifecycle and
send/receive flow), internal/server (HTTP API) and cmd/peppol-gateway.

# Quick Start

To package and serialize an invoice:

	packager := as4.NewPackager()
	msg, err := packager.CreateMessage(ctx, doc, senderCert, as4.ReceiverInfo{
	    Endpoint:                 "https://ap.example.com/as4",
	    DeliveryReceiptRequested: true,
	})
	if err != nil {
	    return err
	}
	body, contentType, err := msg.Serialize()

	tracker := mlr.New()
	tracker.TrackMessageDelivery(msg.MessageID, 30*time.Minute)

The receipt returned by the receiving access point is settled with
tracker.ProcessIncomingSignal.

# License

BSD-2-Clause License
*/
package gopeppol
