// Package compression implements the Compression Pipeline (spec §4.3):
// algorithm selection as a pure function of (contentType, size), with a
// fallback to "none" when compression would expand the payload.
package compression

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/concord-network/substrate/internal/app/dtucodec"
	"github.com/concord-network/substrate/internal/errs"
)

// minSize is the size floor below which compression is never attempted
// (spec §4.3: "size < 256 bytes → none").
const minSize = 256

// alreadyCompressedPrefixes are MIME families assumed pre-compressed.
var alreadyCompressedPrefixes = []string{"image/", "video/", "audio/"}

var archiveMimeTypes = map[string]bool{
	"application/zip":              true,
	"application/gzip":             true,
	"application/x-7z-compressed":  true,
	"application/x-rar-compressed": true,
	"application/x-tar":            true,
}

// SelectAlgorithm is the pure function choosing a compression code for a
// given MIME type and payload size.
func SelectAlgorithm(contentType string, size int) dtucodec.CompressionCode {
	if size < minSize {
		return dtucodec.CompressionNone
	}
	for _, prefix := range alreadyCompressedPrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return dtucodec.CompressionNone
		}
	}
	if archiveMimeTypes[contentType] {
		return dtucodec.CompressionNone
	}
	if isTextLike(contentType) {
		return dtucodec.CompressionBrotli
	}
	return dtucodec.CompressionGzip
}

func isTextLike(contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "text/"):
		return true
	case contentType == "application/json":
		return true
	case strings.HasSuffix(contentType, "/xml"):
		return true
	default:
		return false
	}
}

// Compress applies the algorithm selected for (contentType, len(data)). If
// the compressed output is not smaller than the input, it falls back to
// CompressionNone and returns the original bytes unmodified.
func Compress(contentType string, data []byte) (dtucodec.CompressionCode, []byte, error) {
	algo := SelectAlgorithm(contentType, len(data))
	if algo == dtucodec.CompressionNone {
		return dtucodec.CompressionNone, data, nil
	}

	compressed, err := compressWith(algo, data)
	if err != nil {
		return dtucodec.CompressionNone, nil, err
	}
	if len(compressed) >= len(data) {
		return dtucodec.CompressionNone, data, nil
	}
	return algo, compressed, nil
}

// Decompress reverses Compress using the algorithm code stored in the
// envelope. Corrupt input surfaces as errs.KindInternal ("Decompression
// failed" per spec §4.3).
func Decompress(algo dtucodec.CompressionCode, data []byte) ([]byte, error) {
	switch algo {
	case dtucodec.CompressionNone:
		return data, nil
	case dtucodec.CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errs.Internal("Decompression failed", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errs.Internal("Decompression failed", err)
		}
		return out, nil
	case dtucodec.CompressionBrotli:
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, errs.Internal("Decompression failed", err)
		}
		return out, nil
	case dtucodec.CompressionDeflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errs.Internal("Decompression failed", err)
		}
		return out, nil
	default:
		return nil, errs.Internal("Decompression failed", nil)
	}
}

func compressWith(algo dtucodec.CompressionCode, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch algo {
	case dtucodec.CompressionGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case dtucodec.CompressionBrotli:
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case dtucodec.CompressionDeflate:
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return data, nil
	}
	return buf.Bytes(), nil
}
