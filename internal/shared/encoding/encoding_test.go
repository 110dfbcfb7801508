package encoding

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	body := []byte("<html><body>" + string(bytes.Repeat([]byte("hello proxy "), 200)) + "</body></html>")

	for _, enc := range []string{"", Identity, Gzip, "x-gzip", Deflate, Zstd, " GZIP "} {
		t.Run(enc, func(t *testing.T) {
			encoded, err := Encode(enc, body)
			require.NoError(t, err)

			decoded, err := Decode(enc, encoded)
			require.NoError(t, err)
			assert.Equal(t, body, decoded)
		})
	}
}

func TestDecodeRawDeflate(t *testing.T) {
	body := []byte("raw deflate stream without a zlib header")

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	decoded, err := Decode(Deflate, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, body, decoded)
}

func TestUnsupported(t *testing.T) {
	assert.False(t, IsSupported(Brotli))
	assert.False(t, IsSupported("compress"))
	assert.True(t, IsSupported("Gzip"))
	assert.True(t, IsSupported(""))

	_, err := Decode(Brotli, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Encode(Brotli, []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeCorrupt(t *testing.T) {
	_, err := Decode(Gzip, []byte("not gzip"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupported)
}

func TestFilterAcceptEncoding(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"gzip, deflate, br", "gzip, deflate"},
		{"br;q=1.0, gzip;q=0.8, *;q=0.1", "gzip;q=0.8"},
		{"zstd, identity", "zstd, identity"},
		{"br", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterAcceptEncoding(tt.in))
		})
	}
}
