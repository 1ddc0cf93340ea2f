// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package sbdh wraps PEPPOL business documents in a UN/CEFACT Standard
Business Document Header (SBDH 1.3).

# Creating an envelope

	env := sbdh.NewEnveloper(sbdh.WithLogger(logger))
	data, err := env.CreateEnvelope(doc, sbdh.RoutingMetadata{})

The header carries the scheme-qualified sender and receiver identifiers, the
document identification and the routing scopes:

  - DOCUMENTID: the PEPPOL document type identifier
  - PROCESSID: the document profile
  - COUNTRY_C1 / COUNTRY_C4: sender and receiver country

The business document is wrapped verbatim. When a document carries no
content a minimal UBL skeleton is generated from its identifiers.

# Parsing and validation

ParseEnvelope recovers the header fields and the wrapped document.
ValidateCompliance returns a checklist and score; only structural problems
fail, a header version mismatch or an empty body is reported as a warning.
*/
package sbdh
