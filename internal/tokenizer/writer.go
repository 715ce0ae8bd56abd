package tokenizer

import (
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// MarshalModel serializes m in the sentencepiece ModelProto wire format. Only
// the fields ModelProto carries are written.
func MarshalModel(m *ModelProto) []byte {
	var b []byte
	for _, p := range m.Pieces {
		var pb []byte
		pb = protowire.AppendTag(pb, fieldPieceText, protowire.BytesType)
		pb = protowire.AppendString(pb, p.Text)
		pb = protowire.AppendTag(pb, fieldPieceScore, protowire.Fixed32Type)
		pb = protowire.AppendFixed32(pb, math.Float32bits(p.Score))
		if p.Type != PieceNormal && p.Type != 0 {
			pb = protowire.AppendTag(pb, fieldPieceType, protowire.VarintType)
			pb = protowire.AppendVarint(pb, uint64(p.Type))
		}
		b = protowire.AppendTag(b, fieldModelPieces, protowire.BytesType)
		b = protowire.AppendBytes(b, pb)
	}

	var tb []byte
	appendInt := func(num protowire.Number, v int) {
		tb = protowire.AppendTag(tb, num, protowire.VarintType)
		tb = protowire.AppendVarint(tb, uint64(int64(v)))
	}
	modelType := m.ModelType
	if modelType == 0 {
		modelType = ModelUnigram
	}
	appendInt(fieldTrainerModelType, int(modelType))
	if m.ByteFallback {
		appendInt(fieldTrainerByteFallback, 1)
	}
	appendInt(fieldTrainerUnkID, m.UnkID)
	appendInt(fieldTrainerBOSID, m.BOSID)
	appendInt(fieldTrainerEOSID, m.EOSID)
	appendInt(fieldTrainerPadID, m.PadID)
	b = protowire.AppendTag(b, fieldModelTrainer, protowire.BytesType)
	b = protowire.AppendBytes(b, tb)

	var nb []byte
	nb = protowire.AppendTag(nb, fieldNormName, protowire.BytesType)
	nb = protowire.AppendString(nb, m.NormalizerName)
	for _, f := range []struct {
		num protowire.Number
		v   bool
	}{
		{fieldNormDummyPrefix, m.AddDummyPrefix},
		{fieldNormExtraSpaces, m.RemoveExtraSpaces},
		{fieldNormEscapeWS, m.EscapeWhitespaces},
	} {
		nb = protowire.AppendTag(nb, f.num, protowire.VarintType)
		nb = protowire.AppendVarint(nb, protowire.EncodeBool(f.v))
	}
	b = protowire.AppendTag(b, fieldModelNormalizer, protowire.BytesType)
	b = protowire.AppendBytes(b, nb)
	return b
}

// WriteModel writes m to path as a .model file that LoadSentencePiece reads.
func WriteModel(path string, m *ModelProto) error {
	return os.WriteFile(path, MarshalModel(m), 0o644)
}
