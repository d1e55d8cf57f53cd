package compression

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/concord-network/substrate/internal/app/dtucodec"
)

func TestSelectAlgorithmSmallPayload(t *testing.T) {
	require.Equal(t, dtucodec.CompressionNone, SelectAlgorithm("text/plain", 10))
}

func TestSelectAlgorithmAlreadyCompressed(t *testing.T) {
	require.Equal(t, dtucodec.CompressionNone, SelectAlgorithm("image/png", 10000))
	require.Equal(t, dtucodec.CompressionNone, SelectAlgorithm("application/zip", 10000))
}

func TestSelectAlgorithmTextUsesBrotli(t *testing.T) {
	require.Equal(t, dtucodec.CompressionBrotli, SelectAlgorithm("text/plain", 10000))
	require.Equal(t, dtucodec.CompressionBrotli, SelectAlgorithm("application/json", 10000))
	require.Equal(t, dtucodec.CompressionBrotli, SelectAlgorithm("application/xml", 10000))
}

func TestSelectAlgorithmOtherUsesGzip(t *testing.T) {
	require.Equal(t, dtucodec.CompressionGzip, SelectAlgorithm("application/octet-stream", 10000))
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 50))
	algo, compressed, err := Compress("text/plain", data)
	require.NoError(t, err)
	require.Equal(t, dtucodec.CompressionBrotli, algo)
	require.Less(t, len(compressed), len(data))

	out, err := Decompress(algo, compressed)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestCompressFallsBackWhenNotSmaller(t *testing.T) {
	data := make([]byte, 512)
	x := uint32(1)
	for i := range data {
		x = x*1664525 + 1013904223
		data[i] = byte(x >> 24)
	}
	algo, out, err := Compress("application/octet-stream", data)
	require.NoError(t, err)
	require.Equal(t, dtucodec.CompressionNone, algo)
	require.Equal(t, data, out)
}

func TestDecompressCorruptInput(t *testing.T) {
	_, err := Decompress(dtucodec.CompressionGzip, []byte{1, 2, 3})
	require.Error(t, err)
}
