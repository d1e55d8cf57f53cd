package dtucodec

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/concord-network/substrate/internal/errs"
)

// Magic is the 4-byte signature that opens every DTU envelope.
var Magic = [4]byte{'C', 'D', 'T', 'U'}

// HeaderSize is the fixed on-wire size of the header in bytes (spec §4.1/§6).
const HeaderSize = 48

const mimeFieldSize = 16

// Version is the current wire format version.
const Version uint16 = 1

// FormatType distinguishes a plain DTU from an aggregated Mega/Hyper DTU.
type FormatType byte

const (
	FormatDTU   FormatType = 0
	FormatMega  FormatType = 1
	FormatHyper FormatType = 2
)

// PrimaryType is the 8-bit content-kind code (spec §6).
type PrimaryType byte

const (
	PrimaryPlayAudio        PrimaryType = 0x01
	PrimaryDisplayImage     PrimaryType = 0x02
	PrimaryPlayVideo        PrimaryType = 0x03
	PrimaryRenderDocument   PrimaryType = 0x04
	PrimaryRenderCode       PrimaryType = 0x05
	PrimaryDisplayResearch  PrimaryType = 0x06
	PrimaryDisplayDataset   PrimaryType = 0x07
	PrimaryDisplay3D        PrimaryType = 0x08
	primaryReserved         PrimaryType = 0x09
	PrimaryCondensedKnowledge PrimaryType = 0x0A
	PrimaryCultureMemory    PrimaryType = 0x0B
)

var primaryTypeNames = map[PrimaryType]string{
	PrimaryPlayAudio:          "play_audio",
	PrimaryDisplayImage:       "display_image",
	PrimaryPlayVideo:          "play_video",
	PrimaryRenderDocument:     "render_document",
	PrimaryRenderCode:         "render_code",
	PrimaryDisplayResearch:    "display_research",
	PrimaryDisplayDataset:     "display_dataset",
	PrimaryDisplay3D:          "display_3d",
	PrimaryCondensedKnowledge: "condensed_knowledge",
	PrimaryCultureMemory:      "culture_memory",
}

// Name returns the textual name of a primary type code.
func (p PrimaryType) Name() string {
	if n, ok := primaryTypeNames[p]; ok {
		return n
	}
	return "condensed_knowledge"
}

// artifactTypeToPrimary maps the artifact-type string to its primary type
// code, per spec §6's table.
var artifactTypeToPrimary = map[string]PrimaryType{
	"beat":         PrimaryPlayAudio,
	"song":         PrimaryPlayAudio,
	"illustration": PrimaryDisplayImage,
	"short_film":   PrimaryPlayVideo,
	"library":      PrimaryRenderCode,
	"novel":        PrimaryRenderDocument,
	"paper":        PrimaryDisplayResearch,
	"dataset":      PrimaryDisplayDataset,
	"3d_model":     PrimaryDisplay3D,
	"text":         PrimaryCultureMemory,
}

// PrimaryTypeForArtifact resolves the primary type from an artifact-type
// string, falling back to condensed_knowledge when unrecognized.
func PrimaryTypeForArtifact(artifactType string) PrimaryType {
	if pt, ok := artifactTypeToPrimary[artifactType]; ok {
		return pt
	}
	return PrimaryCondensedKnowledge
}

// CompressionCode is the on-wire compression algorithm identifier (spec §6).
type CompressionCode byte

const (
	CompressionNone    CompressionCode = 0
	CompressionGzip    CompressionCode = 1
	CompressionBrotli  CompressionCode = 2
	CompressionDeflate CompressionCode = 3
)

// Header is the decoded form of the 48-byte envelope header.
type Header struct {
	Version     uint16
	Format      FormatType
	PrimaryType PrimaryType
	Compression CompressionCode
	Layers      byte
	ArtifactSize uint64
	TotalSize   uint64
	ArtifactMime string
}

// PrimaryTypeName returns the textual primary type name for this header.
func (h Header) PrimaryTypeName() string {
	return h.PrimaryType.Name()
}

// encodeHeader serializes h into the fixed 48-byte layout, including the
// trailing CRC32 of the preceding 44 bytes.
func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = byte(h.Format)
	buf[7] = byte(h.PrimaryType)
	buf[8] = byte(h.Compression)
	buf[9] = h.Layers
	binary.LittleEndian.PutUint64(buf[10:18], h.ArtifactSize)
	binary.LittleEndian.PutUint64(buf[18:26], h.TotalSize)

	mime := h.ArtifactMime
	if len(mime) > mimeFieldSize {
		mime = mime[:mimeFieldSize]
	}
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(mime)))
	copy(buf[28:28+mimeFieldSize], mime)

	crc := crc32.ChecksumIEEE(buf[:44])
	binary.LittleEndian.PutUint32(buf[44:48], crc)
	return buf
}

// decodeHeader parses the fixed 48-byte layout, checking the buffer length
// and the magic bytes. The trailing CRC is not checked here; Verify checks
// it through headerCRCValid.
func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errs.BufferTooSmall(len(buf), HeaderSize)
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return Header{}, errs.InvalidMagic()
	}

	mimeLen := int(binary.LittleEndian.Uint16(buf[26:28]))
	if mimeLen > mimeFieldSize {
		mimeLen = mimeFieldSize
	}
	h := Header{
		Version:      binary.LittleEndian.Uint16(buf[4:6]),
		Format:       FormatType(buf[6]),
		PrimaryType:  PrimaryType(buf[7]),
		Compression:  CompressionCode(buf[8]),
		Layers:       buf[9],
		ArtifactSize: binary.LittleEndian.Uint64(buf[10:18]),
		TotalSize:    binary.LittleEndian.Uint64(buf[18:26]),
		ArtifactMime: string(buf[28 : 28+mimeLen]),
	}
	return h, nil
}

// headerCRCValid recomputes the CRC over the first 44 bytes and compares it
// against the stored trailing 4 bytes.
func headerCRCValid(buf []byte) bool {
	if len(buf) < HeaderSize {
		return false
	}
	want := binary.LittleEndian.Uint32(buf[44:48])
	got := crc32.ChecksumIEEE(buf[:44])
	return got == want
}

const (
	layerBitHuman    = 1 << 0
	layerBitCore     = 1 << 1
	layerBitMachine  = 1 << 2
	layerBitArtifact = 1 << 3
)
