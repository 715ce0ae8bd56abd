package tokenizer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type testModel struct {
	pieces       []Piece
	modelType    ModelType
	byteFallback bool
	unkID        int
	bosID        int
	eosID        int
	padID        int
	normalizer   string
	noDummy      bool
}

func (m testModel) proto() *ModelProto {
	return &ModelProto{
		Pieces:            m.pieces,
		ModelType:         m.modelType,
		ByteFallback:      m.byteFallback,
		UnkID:             m.unkID,
		BOSID:             m.bosID,
		EOSID:             m.eosID,
		PadID:             m.padID,
		NormalizerName:    m.normalizer,
		AddDummyPrefix:    !m.noDummy,
		RemoveExtraSpaces: true,
		EscapeWhitespaces: true,
	}
}

func (m testModel) marshal() []byte {
	return MarshalModel(m.proto())
}

// japaneseModel is a small unigram vocabulary covering the example dialogue.
func japaneseModel() testModel {
	return testModel{
		modelType:  ModelUnigram,
		unkID:      0,
		bosID:      1,
		eosID:      2,
		padID:      3,
		normalizer: "nmt_nfkc",
		pieces: []Piece{
			{Text: "<unk>", Type: PieceUnknown},
			{Text: "<s>", Type: PieceControl},
			{Text: "</s>", Type: PieceControl},
			{Text: "<pad>", Type: PieceControl},
			{Text: "[SEPT]", Type: PieceUserDefined},
			{Text: "▁", Score: -2},
			{Text: "▁どこ", Score: -3},
			{Text: "住んで", Score: -4},
			{Text: "住", Score: -8},
			{Text: "ん", Score: -6},
			{Text: "で", Score: -6},
			{Text: "る", Score: -5},
			{Text: "の", Score: -5},
			{Text: "?", Score: -5},
			{Text: "!", Score: -5},
			{Text: "長久手", Score: -7},
			{Text: "▁長", Score: -9},
			{Text: "長", Score: -9},
			{Text: "久", Score: -9},
			{Text: "手", Score: -9},
			{Text: "ど", Score: -9},
			{Text: "こ", Score: -9},
		},
	}
}

func newTokenizer(t *testing.T, m testModel) *SentencePiece {
	t.Helper()
	sp, err := NewSentencePiece(m.marshal())
	require.NoError(t, err)
	return sp
}

func TestParseModelDefaults(t *testing.T) {
	t.Parallel()
	var b []byte
	b = protowire.AppendTag(b, fieldModelPieces, protowire.BytesType)
	var pb []byte
	pb = protowire.AppendTag(pb, fieldPieceText, protowire.BytesType)
	pb = protowire.AppendString(pb, "a")
	b = protowire.AppendBytes(b, pb)

	m, err := parseModel(b)
	require.NoError(t, err)
	assert.Equal(t, ModelUnigram, m.ModelType)
	assert.Equal(t, 0, m.UnkID)
	assert.Equal(t, 1, m.BOSID)
	assert.Equal(t, 2, m.EOSID)
	assert.Equal(t, -1, m.PadID)
	assert.True(t, m.AddDummyPrefix)
	require.Len(t, m.Pieces, 1)
	assert.Equal(t, PieceNormal, m.Pieces[0].Type)
}

func TestNewSentencePieceErrors(t *testing.T) {
	t.Parallel()
	cases := map[string][]byte{
		"garbage":   {0xff, 0xff, 0xff},
		"no-pieces": {},
		"word-model": testModel{
			modelType: ModelWord,
			pieces:    []Piece{{Text: "<unk>", Type: PieceUnknown}},
			bosID:     -1, eosID: -1, padID: -1,
		}.marshal(),
		"bos-out-of-range": testModel{
			modelType: ModelUnigram,
			pieces:    []Piece{{Text: "<unk>", Type: PieceUnknown}},
			bosID:     7, eosID: -1, padID: -1,
		}.marshal(),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSentencePiece(data)
			require.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestLoadSentencePiece(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jp_spm.model")
	require.NoError(t, WriteModel(path, japaneseModel().proto()))

	sp, err := LoadSentencePiece(path)
	require.NoError(t, err)
	assert.Equal(t, 22, sp.VocabSize())
	assert.Equal(t, ModelUnigram, sp.ModelType())
	assert.Equal(t, 1, sp.BOSID())
	assert.Equal(t, 2, sp.EOSID())
	assert.Equal(t, 3, sp.PadID())
	assert.Equal(t, 0, sp.UnkID())

	_, err = LoadSentencePiece(filepath.Join(t.TempDir(), "missing.model"))
	require.ErrorIs(t, err, ErrInvalidModel)
}

func TestUnigramViterbi(t *testing.T) {
	t.Parallel()
	sp := newTokenizer(t, japaneseModel())

	ids, err := sp.Encode("どこ住んでるの?")
	require.NoError(t, err)
	// ▁どこ | 住んで | る | の | ?
	assert.Equal(t, []int{6, 7, 11, 12, 13}, ids)

	// Full-width "？" folds to "?" under NFKC.
	wide, err := sp.Encode("どこ住んでるの？")
	require.NoError(t, err)
	assert.Equal(t, ids, wide)
}

func TestUnigramPrefersHigherScore(t *testing.T) {
	t.Parallel()
	sp := newTokenizer(t, japaneseModel())
	ids, err := sp.Encode("長久手!")
	require.NoError(t, err)
	// "▁" + "長久手" (-2 + -7) beats "▁長" + "久" + "手" (-27).
	assert.Equal(t, []int{5, 15, 14}, ids)
}

func TestEncodeUnknownCollapses(t *testing.T) {
	t.Parallel()
	sp := newTokenizer(t, japaneseModel())
	ids, err := sp.Encode("どこxyz")
	require.NoError(t, err)
	assert.Equal(t, []int{6, 0}, ids)

	text, err := sp.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "どこ ⁇ ", text)
}

func TestEncodeWithoutUnknownPieceFails(t *testing.T) {
	t.Parallel()
	m := japaneseModel()
	m.unkID = -1
	m.pieces[0] = Piece{Text: "<reserved>", Type: PieceControl}
	sp := newTokenizer(t, m)

	_, err := sp.Encode("xyz")
	require.ErrorIs(t, err, ErrEncode)
}

func TestEncodeInvalidUTF8(t *testing.T) {
	t.Parallel()
	sp := newTokenizer(t, japaneseModel())
	_, err := sp.Encode(string([]byte{0xff, 0xfe}))
	require.ErrorIs(t, err, ErrEncode)
}

func TestEncodeEmptyAndWhitespace(t *testing.T) {
	t.Parallel()
	sp := newTokenizer(t, japaneseModel())
	for _, in := range []string{"", "   ", "\t\n"} {
		ids, err := sp.Encode(in)
		require.NoError(t, err)
		assert.Empty(t, ids, "input %q", in)
	}
}

func TestDecodeDropsControlPieces(t *testing.T) {
	t.Parallel()
	sp := newTokenizer(t, japaneseModel())
	text, err := sp.Decode([]int{1, 6, 7, 11, 12, 13, 2, 3, 3})
	require.NoError(t, err)
	assert.Equal(t, "どこ住んでるの?", text)

	_, err = sp.Decode([]int{99})
	require.ErrorIs(t, err, ErrUnknownID)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	sp := newTokenizer(t, japaneseModel())
	for _, in := range []string{"どこ住んでるの?", "長久手!", "どこ 長久手"} {
		ids, err := sp.Encode(in)
		require.NoError(t, err)
		out, err := sp.Decode(ids)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestByteFallback(t *testing.T) {
	t.Parallel()
	m := testModel{
		modelType:    ModelUnigram,
		byteFallback: true,
		unkID:        0,
		bosID:        1,
		eosID:        2,
		padID:        -1,
		normalizer:   "identity",
		pieces: []Piece{
			{Text: "<unk>", Type: PieceUnknown},
			{Text: "<s>", Type: PieceControl},
			{Text: "</s>", Type: PieceControl},
			{Text: "▁", Score: -1},
			{Text: "<0xE3>", Type: PieceByte},
			{Text: "<0x81>", Type: PieceByte},
			{Text: "<0x82>", Type: PieceByte},
		},
	}
	sp := newTokenizer(t, m)
	ids, err := sp.Encode("あ") // E3 81 82
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5, 6}, ids)

	text, err := sp.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "あ", text)
}

func TestBPEMerges(t *testing.T) {
	t.Parallel()
	m := testModel{
		modelType:  ModelBPE,
		unkID:      0,
		bosID:      1,
		eosID:      2,
		padID:      -1,
		normalizer: "identity",
		pieces: []Piece{
			{Text: "<unk>", Type: PieceUnknown},
			{Text: "<s>", Type: PieceControl},
			{Text: "</s>", Type: PieceControl},
			{Text: "▁", Score: 0},
			{Text: "a", Score: 0},
			{Text: "b", Score: 0},
			{Text: "ab", Score: -1},
			{Text: "▁ab", Score: -2},
			{Text: "▁a", Score: -3},
		},
	}
	sp := newTokenizer(t, m)
	ids, err := sp.Encode("abab")
	require.NoError(t, err)
	// Merges: a+b (x2, leftmost first), then ▁+ab.
	assert.Equal(t, []int{7, 6}, ids)

	text, err := sp.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "abab", text)
}

func TestNoDummyPrefix(t *testing.T) {
	t.Parallel()
	m := japaneseModel()
	m.noDummy = true
	sp := newTokenizer(t, m)
	ids, err := sp.Encode("長久手")
	require.NoError(t, err)
	assert.Equal(t, []int{15}, ids)
}

func TestPieceLookup(t *testing.T) {
	t.Parallel()
	sp := newTokenizer(t, japaneseModel())
	id, ok := sp.PieceID("[SEPT]")
	require.True(t, ok)
	assert.Equal(t, 4, id)
	id, ok = sp.PieceID("</s>")
	require.True(t, ok)
	assert.Equal(t, 2, id)
	_, ok = sp.PieceID("nope")
	assert.False(t, ok)
	assert.Equal(t, "住んで", sp.TokenString(7))
	assert.Equal(t, "", sp.TokenString(-1))
}
