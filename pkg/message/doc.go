// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message provides AS4 message structures, builders and their SOAP 1.2
wire form.

This package implements the message structures defined in the OASIS ebXML
Messaging Services Version 3.0 specification, with the WS-Security and
WS-ReliableMessaging header blocks used by PEPPOL AS4.

# Message Types

UserMessage - Business messages containing:
  - MessageInfo: Message ID, timestamp, RefToMessageId
  - PartyInfo: Sender and receiver party identification
  - CollaborationInfo: Service, action, conversation ID
  - MessageProperties: originalSender, finalRecipient
  - PayloadInfo: References to attached payloads

SignalMessage - Protocol signals:
  - Receipt: Acknowledgment, optionally with non-repudiation information
  - Error: ebMS3 error codes (EBMS:0001 to EBMS:0303)

# Building Messages

	msg, err := message.NewUserMessage(
	    message.WithFrom("12345678901", message.PartyIDTypePrefix+"9999"),
	    message.WithTo("5790000435968", message.PartyIDTypePrefix+"0088"),
	    message.WithService(processID, "cenbii-procid-ubl"),
	    message.WithAction(documentID),
	).AddPart("payload").Build()

# Wire Form

Envelopes are rendered with etree using fixed prefixes:

	soap = http://www.w3.org/2003/05/soap-envelope
	eb   = http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/
	wsse = http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd
	wsu  = http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd
	wsrm = http://docs.oasis-open.org/ws-rx/wsrm/200702

Decoding matches elements by local name and namespace so that envelopes
produced by other implementations with different prefixes are accepted.

# References

  - OASIS ebMS 3.0 Core: https://docs.oasis-open.org/ebxml-msg/ebms/v3.0/core/os/
  - ebCore Party ID Types: https://docs.oasis-open.org/ebcore/PartyIdType/v1.0/
*/
package message
