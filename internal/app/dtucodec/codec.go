// Package dtucodec implements the Container Codec (spec §4.1): encoding a
// DTU to its self-describing binary envelope, decoding the same buffer, and
// verifying it against an expected hash/signature.
package dtucodec

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/errs"
)

// EncodeOptions configures an Encode call.
type EncodeOptions struct {
	// SigningKey is the HMAC key used to compute the envelope signature.
	// A nil key still produces a deterministic (but unkeyed) signature;
	// production callers always supply one.
	SigningKey []byte
	Format     FormatType
	Compression CompressionCode
}

// Result is the output of Encode.
type Result struct {
	Buffer        []byte
	ContentHash   string
	Signature     string
	TotalSize     uint64
	PrimaryType   PrimaryType
	LayersPresent byte
}

// Decoded is the output of Decode.
type Decoded struct {
	Header       Header
	HumanLayer   *dtu.HumanLayer
	CoreLayer    *dtu.CoreLayer
	MachineLayer *dtu.MachineLayer
	ArtifactData []byte
	Metadata     map[string]interface{}
}

// VerifyOptions supplies the expected hash/signature for Verify.
type VerifyOptions struct {
	ExpectedHash      string
	ExpectedSignature string
}

// VerifyResult reports the outcome of a Verify call.
type VerifyResult struct {
	HeaderValid    bool
	HashMatch      bool
	SignatureValid bool
	Tampered       bool
}

// Encode serializes d into a self-describing byte stream. Encoding with
// identical inputs yields an identical buffer and identical ContentHash
// (determinism, spec §4.1).
func Encode(d *dtu.DTU, opts EncodeOptions) (Result, error) {
	if d.ID == "" {
		return Result{}, errs.MissingID()
	}
	if d.Layers.Human == nil {
		return Result{}, errs.MissingHumanLayer()
	}

	var artifactMime string
	var artifactBytes []byte
	if d.Layers.Artifact != nil {
		artifactMime = d.Layers.Artifact.MimeType
		artifactBytes = d.Layers.Artifact.Data
	}

	primaryType := PrimaryCondensedKnowledge
	if d.Layers.Artifact != nil {
		primaryType = PrimaryTypeForArtifact(artifactTypeFromMime(artifactMime))
	}

	layersPresent := d.Layers.Bitfield()

	var body bytes.Buffer
	if err := writeLayer(&body, layersPresent&layerBitHuman != 0, d.Layers.Human); err != nil {
		return Result{}, err
	}
	if err := writeLayer(&body, layersPresent&layerBitCore != 0, d.Layers.Core); err != nil {
		return Result{}, err
	}
	if err := writeLayer(&body, layersPresent&layerBitMachine != 0, d.Layers.Machine); err != nil {
		return Result{}, err
	}
	if layersPresent&layerBitArtifact != 0 {
		writeRawLayer(&body, artifactBytes)
	}

	header := Header{
		Version:      Version,
		Format:       opts.Format,
		PrimaryType:  primaryType,
		Compression:  opts.Compression,
		Layers:       layersPresent,
		ArtifactSize: uint64(len(artifactBytes)),
		ArtifactMime: artifactMime,
	}
	header.TotalSize = uint64(HeaderSize + body.Len())

	headerBytes := encodeHeader(header)

	buf := make([]byte, 0, len(headerBytes)+body.Len())
	buf = append(buf, headerBytes...)
	buf = append(buf, body.Bytes()...)

	contentHash := hashBuffer(buf)
	signature := signBuffer(opts.SigningKey, buf)

	return Result{
		Buffer:        buf,
		ContentHash:   contentHash,
		Signature:     signature,
		TotalSize:     header.TotalSize,
		PrimaryType:   primaryType,
		LayersPresent: layersPresent,
	}, nil
}

// Decode parses buf back into its header and payload layers.
func Decode(buf []byte) (Decoded, error) {
	header, err := decodeHeader(buf)
	if err != nil {
		return Decoded{}, err
	}

	body := buf[HeaderSize:]
	r := bytes.NewReader(body)

	var human *dtu.HumanLayer
	var core *dtu.CoreLayer
	var machine *dtu.MachineLayer
	var artifact []byte

	if header.Layers&layerBitHuman != 0 {
		raw, err := readLayer(r)
		if err != nil {
			return Decoded{}, err
		}
		human = &dtu.HumanLayer{}
		if err := json.Unmarshal(raw, human); err != nil {
			return Decoded{}, errs.Internal("decode human layer", err)
		}
	}
	if header.Layers&layerBitCore != 0 {
		raw, err := readLayer(r)
		if err != nil {
			return Decoded{}, err
		}
		core = &dtu.CoreLayer{}
		if err := json.Unmarshal(raw, core); err != nil {
			return Decoded{}, errs.Internal("decode core layer", err)
		}
	}
	if header.Layers&layerBitMachine != 0 {
		raw, err := readLayer(r)
		if err != nil {
			return Decoded{}, err
		}
		machine = &dtu.MachineLayer{}
		if err := json.Unmarshal(raw, machine); err != nil {
			return Decoded{}, errs.Internal("decode machine layer", err)
		}
	}
	if header.Layers&layerBitArtifact != 0 {
		raw, err := readLayer(r)
		if err != nil {
			return Decoded{}, err
		}
		artifact = raw
	}

	return Decoded{
		Header:       header,
		HumanLayer:   human,
		CoreLayer:    core,
		MachineLayer: machine,
		ArtifactData: artifact,
		Metadata: map[string]interface{}{
			"primaryType": header.PrimaryTypeName(),
			"totalSize":   header.TotalSize,
		},
	}, nil
}

// Verify re-derives the header validity, hash match, and signature match
// for buf against the expected values.
func Verify(buf []byte, signingKey []byte, opts VerifyOptions) VerifyResult {
	headerValid := len(buf) >= HeaderSize && headerCRCValid(buf)

	hashMatch := true
	if opts.ExpectedHash != "" {
		hashMatch = headerValid && hashBuffer(buf) == opts.ExpectedHash
	}

	signatureValid := true
	if opts.ExpectedSignature != "" {
		signatureValid = headerValid && signBuffer(signingKey, buf) == opts.ExpectedSignature
	}

	return VerifyResult{
		HeaderValid:    headerValid,
		HashMatch:      hashMatch,
		SignatureValid: signatureValid,
		Tampered:       !hashMatch || !signatureValid || !headerValid,
	}
}

func hashBuffer(buf []byte) string {
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func signBuffer(key []byte, buf []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(buf)
	return hex.EncodeToString(mac.Sum(nil))
}

func writeLayer(w *bytes.Buffer, present bool, v interface{}) error {
	if !present {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.Internal("encode layer", err)
	}
	writeRawLayer(w, raw)
	return nil
}

func writeRawLayer(w *bytes.Buffer, raw []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	w.Write(lenBuf[:])
	w.Write(raw)
}

func readLayer(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return nil, errs.BufferTooSmall(r.Len(), 4)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	raw := make([]byte, n)
	if _, err := r.Read(raw); err != nil {
		return nil, errs.BufferTooSmall(r.Len(), int(n))
	}
	return raw, nil
}

// artifactTypeFromMime is a condensed textual/condensed fallback used when
// the caller has not set an explicit artifact-type tag: MIME families map
// to the artifact-type vocabulary consumed by PrimaryTypeForArtifact.
func artifactTypeFromMime(mime string) string {
	switch {
	case mime == "":
		return ""
	case hasPrefix(mime, "audio/"):
		return "song"
	case hasPrefix(mime, "image/"):
		return "illustration"
	case hasPrefix(mime, "video/"):
		return "short_film"
	case hasPrefix(mime, "text/"):
		return "text"
	case mime == "application/json" || hasSuffix(mime, "/xml"):
		return "text"
	default:
		return ""
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
