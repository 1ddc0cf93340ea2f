package compression

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressor_CompressDecompress(t *testing.T) {
	compressor := NewCompressor()

	invoice := []byte(`<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2">` +
		string(bytes.Repeat([]byte(`<cac:InvoiceLine><cbc:ID>1</cbc:ID></cac:InvoiceLine>`), 50)) +
		`</Invoice>`)

	compressed, err := compressor.Compress(invoice)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(invoice))

	decompressed, err := compressor.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, invoice, decompressed)
}

func TestCompressor_EmptyData(t *testing.T) {
	compressor := NewCompressor()

	compressed, err := compressor.Compress([]byte{})
	require.NoError(t, err)
	assert.NotEmpty(t, compressed)

	decompressed, err := compressor.Decompress(compressed)
	require.NoError(t, err)
	assert.Empty(t, decompressed)
}

func TestCompressor_InvalidData(t *testing.T) {
	_, err := NewCompressor().Decompress([]byte("not gzip"))
	assert.True(t, errors.Is(err, ErrDecompressionFailure))
}

func TestCompressor_SizeLimit(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 4096)
	compressed, err := NewCompressor().Compress(data)
	require.NoError(t, err)

	_, err = NewCompressor().WithMaxDecompressedSize(1024).Decompress(compressed)
	assert.True(t, errors.Is(err, ErrDecompressionFailure))

	out, err := NewCompressor().WithMaxDecompressedSize(4096).Decompress(compressed)
	require.NoError(t, err)
	assert.Len(t, out, 4096)
}

func TestShouldCompress(t *testing.T) {
	assert.True(t, ShouldCompress("application/xml"))
	assert.True(t, ShouldCompress("application/xml; charset=UTF-8"))
	assert.False(t, ShouldCompress("application/gzip"))
	assert.False(t, ShouldCompress("IMAGE/PNG"))
}
