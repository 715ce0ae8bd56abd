package tokenizer

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// PieceType mirrors SentencePiece.Type in sentencepiece_model.proto.
type PieceType int32

const (
	PieceNormal      PieceType = 1
	PieceUnknown     PieceType = 2
	PieceControl     PieceType = 3
	PieceUserDefined PieceType = 4
	PieceUnused      PieceType = 5
	PieceByte        PieceType = 6
)

// ModelType mirrors TrainerSpec.ModelType.
type ModelType int32

const (
	ModelUnigram ModelType = 1
	ModelBPE     ModelType = 2
	ModelWord    ModelType = 3
	ModelChar    ModelType = 4
)

func (m ModelType) String() string {
	switch m {
	case ModelUnigram:
		return "unigram"
	case ModelBPE:
		return "bpe"
	case ModelWord:
		return "word"
	case ModelChar:
		return "char"
	default:
		return fmt.Sprintf("model_type(%d)", int32(m))
	}
}

// Piece is one vocabulary entry.
type Piece struct {
	Text  string
	Score float32
	Type  PieceType
}

// ModelProto holds the subset of the SentencePiece model needed to encode and
// decode text. Zero values are replaced by the proto defaults in parseModel.
type ModelProto struct {
	Pieces []Piece

	ModelType    ModelType
	ByteFallback bool
	UnkID        int
	BOSID        int
	EOSID        int
	PadID        int

	NormalizerName    string
	AddDummyPrefix    bool
	RemoveExtraSpaces bool
	EscapeWhitespaces bool
	precompiled       bool
}

// Field numbers from sentencepiece_model.proto.
const (
	fieldModelPieces     protowire.Number = 1
	fieldModelTrainer    protowire.Number = 2
	fieldModelNormalizer protowire.Number = 3

	fieldPieceText  protowire.Number = 1
	fieldPieceScore protowire.Number = 2
	fieldPieceType  protowire.Number = 3

	fieldTrainerModelType    protowire.Number = 3
	fieldTrainerByteFallback protowire.Number = 35
	fieldTrainerUnkID        protowire.Number = 40
	fieldTrainerBOSID        protowire.Number = 41
	fieldTrainerEOSID        protowire.Number = 42
	fieldTrainerPadID        protowire.Number = 43

	fieldNormName        protowire.Number = 1
	fieldNormCharsMap    protowire.Number = 2
	fieldNormDummyPrefix protowire.Number = 3
	fieldNormExtraSpaces protowire.Number = 4
	fieldNormEscapeWS    protowire.Number = 5
)

func parseModel(b []byte) (*ModelProto, error) {
	m := &ModelProto{
		ModelType:         ModelUnigram,
		UnkID:             0,
		BOSID:             1,
		EOSID:             2,
		PadID:             -1,
		AddDummyPrefix:    true,
		RemoveExtraSpaces: true,
		EscapeWhitespaces: true,
	}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldModelPieces && typ == protowire.BytesType:
			p, err := parsePiece(v)
			if err != nil {
				return fmt.Errorf("piece %d: %w", len(m.Pieces), err)
			}
			m.Pieces = append(m.Pieces, p)
		case num == fieldModelTrainer && typ == protowire.BytesType:
			if err := parseTrainer(v, m); err != nil {
				return fmt.Errorf("trainer_spec: %w", err)
			}
		case num == fieldModelNormalizer && typ == protowire.BytesType:
			if err := parseNormalizer(v, m); err != nil {
				return fmt.Errorf("normalizer_spec: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parsePiece(b []byte) (Piece, error) {
	p := Piece{Type: PieceNormal}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldPieceText && typ == protowire.BytesType:
			p.Text = string(v)
		case num == fieldPieceScore && typ == protowire.Fixed32Type:
			p.Score = math.Float32frombits(uint32(x))
		case num == fieldPieceType && typ == protowire.VarintType:
			p.Type = PieceType(int32(x))
		}
		return nil
	})
	return p, err
}

func parseTrainer(b []byte, m *ModelProto) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		if typ != protowire.VarintType {
			return nil
		}
		switch num {
		case fieldTrainerModelType:
			m.ModelType = ModelType(int32(x))
		case fieldTrainerByteFallback:
			m.ByteFallback = protowire.DecodeBool(x)
		case fieldTrainerUnkID:
			m.UnkID = int(int32(x))
		case fieldTrainerBOSID:
			m.BOSID = int(int32(x))
		case fieldTrainerEOSID:
			m.EOSID = int(int32(x))
		case fieldTrainerPadID:
			m.PadID = int(int32(x))
		}
		return nil
	})
}

func parseNormalizer(b []byte, m *ModelProto) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldNormName && typ == protowire.BytesType:
			m.NormalizerName = string(v)
		case num == fieldNormCharsMap && typ == protowire.BytesType:
			m.precompiled = len(v) > 0
		case num == fieldNormDummyPrefix && typ == protowire.VarintType:
			m.AddDummyPrefix = protowire.DecodeBool(x)
		case num == fieldNormExtraSpaces && typ == protowire.VarintType:
			m.RemoveExtraSpaces = protowire.DecodeBool(x)
		case num == fieldNormEscapeWS && typ == protowire.VarintType:
			m.EscapeWhitespaces = protowire.DecodeBool(x)
		}
		return nil
	})
}

// walkFields visits every field of a serialized message. For length-delimited
// fields v holds the payload; for scalar fields x holds the raw value.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var u uint32
			u, n = protowire.ConsumeFixed32(b)
			x = uint64(u)
		case protowire.Fixed64Type:
			x, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}
