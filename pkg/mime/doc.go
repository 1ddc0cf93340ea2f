// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package mime handles MIME multipart packaging for AS4.

This package implements SOAP with Attachments (SwA) packaging. A PEPPOL AS4
message carries the SOAP envelope as root part and the business document as
a single attachment with Content-ID "payload".

# MIME Structure

	Content-Type: multipart/related;
	    boundary="----=_Part_...";
	    start="<...@peppol.siros.org>";
	    type="application/soap+xml"

	------=_Part_...
	Content-Type: application/soap+xml; charset=UTF-8
	Content-Transfer-Encoding: 8bit
	Content-ID: <...@peppol.siros.org>

	[SOAP Envelope]

	------=_Part_...
	Content-Type: application/xml
	Content-Transfer-Encoding: binary
	Content-ID: <payload>

	[SBDH wrapped document]

# Usage

	msg := mime.NewMessage(envelopeXML, []mime.Payload{{ContentID: "payload", ...}})
	body, contentType, err := msg.Serialize()

	parsed, err := mime.Parse(bytes.NewReader(body), contentType)

# References

  - SOAP with Attachments: https://www.w3.org/TR/SOAP-attachments
  - MIME Multipart: https://datatracker.ietf.org/doc/html/rfc2046
*/
package mime
