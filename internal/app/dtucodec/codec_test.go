package dtucodec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/concord-network/substrate/internal/app/domain/dtu"
	"github.com/concord-network/substrate/internal/errs"
)

func sampleDTU() *dtu.DTU {
	return &dtu.DTU{
		ID:        "dtu_rt_001",
		CreatorID: "u",
		Layers: dtu.Layers{
			Human: &dtu.HumanLayer{Summary: "x"},
			Core:  &dtu.CoreLayer{Invariants: []string{"x>0"}},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := sampleDTU()

	res, err := Encode(d, EncodeOptions{SigningKey: []byte("k"), Format: FormatDTU})
	require.NoError(t, err)
	require.NotEmpty(t, res.ContentHash)

	decoded, err := Decode(res.Buffer)
	require.NoError(t, err)
	require.Equal(t, "x", decoded.HumanLayer.Summary)
	require.Equal(t, []string{"x>0"}, decoded.CoreLayer.Invariants)
	require.Equal(t, "condensed_knowledge", decoded.Header.PrimaryTypeName())
}

func TestEncodeDeterministic(t *testing.T) {
	d := sampleDTU()
	r1, err := Encode(d, EncodeOptions{SigningKey: []byte("k")})
	require.NoError(t, err)
	r2, err := Encode(d, EncodeOptions{SigningKey: []byte("k")})
	require.NoError(t, err)
	require.Equal(t, r1.Buffer, r2.Buffer)
	require.Equal(t, r1.ContentHash, r2.ContentHash)
}

func TestEncodeMissingID(t *testing.T) {
	d := sampleDTU()
	d.ID = ""
	_, err := Encode(d, EncodeOptions{})
	require.True(t, errs.Is(err, errs.KindMissingID))
}

func TestEncodeMissingHumanLayer(t *testing.T) {
	d := sampleDTU()
	d.Layers.Human = nil
	_, err := Encode(d, EncodeOptions{})
	require.True(t, errs.Is(err, errs.KindMissingHumanLayer))
}

func TestDecodeBufferTooSmall(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.True(t, errs.Is(err, errs.KindBufferTooSmall))
}

func TestDecodeInvalidMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	_, err := Decode(buf)
	require.True(t, errs.Is(err, errs.KindInvalidMagic))
}

func TestVerifyDetectsTamper(t *testing.T) {
	d := sampleDTU()
	key := []byte("signing-key")
	res, err := Encode(d, EncodeOptions{SigningKey: key})
	require.NoError(t, err)

	verify := Verify(res.Buffer, key, VerifyOptions{
		ExpectedHash:      res.ContentHash,
		ExpectedSignature: res.Signature,
	})
	require.False(t, verify.Tampered)

	tampered := append([]byte(nil), res.Buffer...)
	tampered[HeaderSize] ^= 0xFF
	verify = Verify(tampered, key, VerifyOptions{
		ExpectedHash:      res.ContentHash,
		ExpectedSignature: res.Signature,
	})
	require.True(t, verify.Tampered)
}

func TestArtifactTypeMapping(t *testing.T) {
	require.Equal(t, PrimaryPlayAudio, PrimaryTypeForArtifact("beat"))
	require.Equal(t, PrimaryPlayAudio, PrimaryTypeForArtifact("song"))
	require.Equal(t, PrimaryDisplayImage, PrimaryTypeForArtifact("illustration"))
	require.Equal(t, PrimaryPlayVideo, PrimaryTypeForArtifact("short_film"))
	require.Equal(t, PrimaryRenderCode, PrimaryTypeForArtifact("library"))
	require.Equal(t, PrimaryRenderDocument, PrimaryTypeForArtifact("novel"))
	require.Equal(t, PrimaryDisplayResearch, PrimaryTypeForArtifact("paper"))
	require.Equal(t, PrimaryDisplayDataset, PrimaryTypeForArtifact("dataset"))
	require.Equal(t, PrimaryDisplay3D, PrimaryTypeForArtifact("3d_model"))
	require.Equal(t, PrimaryCultureMemory, PrimaryTypeForArtifact("text"))
	require.Equal(t, PrimaryCondensedKnowledge, PrimaryTypeForArtifact("unknown"))
}
