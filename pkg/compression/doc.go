// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package compression provides GZIP payload compression for AS4.

When compression is enabled the AS4 packager compresses the business
document and announces it with the PartProperty
CompressionType=application/gzip; MimeType keeps the original content type.

	compressor := compression.NewCompressor()
	compressed, err := compressor.Compress(payload)

Decompression is bounded; a payload that fails to inflate or exceeds the
limit yields ErrDecompressionFailure, which receivers report as EBMS:0303.

	decompressed, err := compressor.Decompress(compressed)

Already compressed media types are left alone:

	if compression.ShouldCompress("application/xml") {
	    // compress
	}

# References

  - OASIS AS4 Compression: https://docs.oasis-open.org/ebxml-msg/ebms/v3.0/profiles/AS4-profile/v1.0/
  - GZIP RFC 1952: https://datatracker.ietf.org/doc/html/rfc1952
*/
package compression
