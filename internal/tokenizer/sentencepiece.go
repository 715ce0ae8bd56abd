package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidModel is returned when a SentencePiece model file cannot be used.
	ErrInvalidModel = errors.New("tokenizer: invalid sentencepiece model")
	// ErrEncode is returned when text cannot be represented by the vocabulary.
	ErrEncode = errors.New("tokenizer: cannot encode text")
	// ErrUnknownID is returned by Decode for ids outside the vocabulary.
	ErrUnknownID = errors.New("tokenizer: token id out of range")
)

const (
	spaceSymbol = "▁"
	unkSurface  = " ⁇ "
	// unkPenalty is subtracted from the lowest piece score to score unknown
	// characters during unigram segmentation.
	unkPenalty = 10
)

// SentencePiece encodes and decodes text with a SentencePiece unigram or BPE
// model. It is read-only after construction.
type SentencePiece struct {
	model    *ModelProto
	pieces   map[string]int
	maxLen   int
	minScore float32
	byteIDs  [256]int
}

var _ Tokenizer = (*SentencePiece)(nil)

// LoadSentencePiece reads a serialized SentencePiece model from path.
func LoadSentencePiece(path string) (*SentencePiece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	sp, err := NewSentencePiece(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sp, nil
}

// NewSentencePiece builds a tokenizer from serialized ModelProto bytes.
func NewSentencePiece(data []byte) (*SentencePiece, error) {
	m, err := parseModel(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if len(m.Pieces) == 0 {
		return nil, fmt.Errorf("%w: no pieces", ErrInvalidModel)
	}
	if m.ModelType != ModelUnigram && m.ModelType != ModelBPE {
		return nil, fmt.Errorf("%w: unsupported model type %s", ErrInvalidModel, m.ModelType)
	}
	for name, id := range map[string]int{"unk": m.UnkID, "bos": m.BOSID, "eos": m.EOSID, "pad": m.PadID} {
		if id >= len(m.Pieces) {
			return nil, fmt.Errorf("%w: %s id %d outside vocabulary of %d", ErrInvalidModel, name, id, len(m.Pieces))
		}
	}

	sp := &SentencePiece{
		model:  m,
		pieces: make(map[string]int, len(m.Pieces)),
	}
	for i := range sp.byteIDs {
		sp.byteIDs[i] = -1
	}
	first := true
	for id, p := range m.Pieces {
		switch p.Type {
		case PieceNormal, PieceUserDefined:
			if _, dup := sp.pieces[p.Text]; !dup {
				sp.pieces[p.Text] = id
			}
			if len(p.Text) > sp.maxLen {
				sp.maxLen = len(p.Text)
			}
			if first || p.Score < sp.minScore {
				sp.minScore = p.Score
				first = false
			}
		case PieceByte:
			if b, ok := parseBytePiece(p.Text); ok {
				sp.byteIDs[b] = id
			}
		}
	}
	return sp, nil
}

// Encode segments text into token ids. No bos/eos ids are added.
func (s *SentencePiece) Encode(text string) ([]int, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrEncode)
	}
	normalized := s.normalize(text)
	if normalized == "" {
		return []int{}, nil
	}
	var segs []segment
	switch s.model.ModelType {
	case ModelBPE:
		segs = s.segmentBPE(normalized)
	default:
		segs = s.segmentUnigram(normalized)
	}
	return s.emit(normalized, segs)
}

// Decode renders ids back into text. Control pieces (bos, eos, pad) produce no
// output and byte-fallback pieces are reassembled into UTF-8.
func (s *SentencePiece) Decode(ids []int) (string, error) {
	var (
		b       strings.Builder
		pending []byte
	)
	flush := func() {
		if len(pending) > 0 {
			b.WriteString(strings.ToValidUTF8(string(pending), "�"))
			pending = pending[:0]
		}
	}
	for _, id := range ids {
		if id < 0 || id >= len(s.model.Pieces) {
			return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
		}
		p := s.model.Pieces[id]
		switch p.Type {
		case PieceControl:
		case PieceUnknown:
			flush()
			b.WriteString(unkSurface)
		case PieceByte:
			if v, ok := parseBytePiece(p.Text); ok {
				pending = append(pending, v)
			}
		default:
			flush()
			b.WriteString(strings.ReplaceAll(p.Text, spaceSymbol, " "))
		}
	}
	flush()
	out := b.String()
	if s.model.AddDummyPrefix {
		out = strings.TrimPrefix(out, " ")
	}
	return out, nil
}

// VocabSize returns the number of pieces.
func (s *SentencePiece) VocabSize() int { return len(s.model.Pieces) }

// ModelType reports whether the model is unigram or BPE.
func (s *SentencePiece) ModelType() ModelType { return s.model.ModelType }

func (s *SentencePiece) UnkID() int { return s.model.UnkID }
func (s *SentencePiece) BOSID() int { return s.model.BOSID }
func (s *SentencePiece) EOSID() int { return s.model.EOSID }
func (s *SentencePiece) PadID() int { return s.model.PadID }

// TokenString returns the piece text for id, or "" when out of range.
func (s *SentencePiece) TokenString(id int) string {
	if id < 0 || id >= len(s.model.Pieces) {
		return ""
	}
	return s.model.Pieces[id].Text
}

// PieceID looks up a piece by its exact text, including control pieces.
func (s *SentencePiece) PieceID(text string) (int, bool) {
	if id, ok := s.pieces[text]; ok {
		return id, true
	}
	for id, p := range s.model.Pieces {
		if p.Text == text {
			return id, true
		}
	}
	return -1, false
}

// segment is a byte range of the normalized text mapped to a piece id, or to
// -1 when no piece covers it.
type segment struct {
	start, end int
	id         int
}

// emit converts segments to ids, applying byte fallback or the unknown piece
// to uncovered ranges. Adjacent unknown ranges collapse into one unknown id.
func (s *SentencePiece) emit(text string, segs []segment) ([]int, error) {
	ids := make([]int, 0, len(segs))
	prevUnk := false
	for _, seg := range segs {
		if seg.id >= 0 {
			ids = append(ids, seg.id)
			prevUnk = false
			continue
		}
		if s.model.ByteFallback {
			if byteIDs, ok := s.fallbackBytes(text[seg.start:seg.end]); ok {
				ids = append(ids, byteIDs...)
				prevUnk = false
				continue
			}
		}
		if s.model.UnkID < 0 {
			return nil, fmt.Errorf("%w: %q not in vocabulary", ErrEncode, text[seg.start:seg.end])
		}
		if !prevUnk {
			ids = append(ids, s.model.UnkID)
		}
		prevUnk = true
	}
	return ids, nil
}

func (s *SentencePiece) fallbackBytes(chunk string) ([]int, bool) {
	out := make([]int, 0, len(chunk))
	for i := 0; i < len(chunk); i++ {
		id := s.byteIDs[chunk[i]]
		if id < 0 {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

// parseBytePiece decodes pieces of the form <0xAB>.
func parseBytePiece(text string) (byte, bool) {
	if len(text) != 6 || !strings.HasPrefix(text, "<0x") || text[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(text[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}
