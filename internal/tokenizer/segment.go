package tokenizer

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// normalize applies the model's normalizer: NFKC folding, whitespace cleanup,
// the dummy prefix and whitespace escaping.
func (s *SentencePiece) normalize(text string) string {
	m := s.model
	name := strings.ToLower(m.NormalizerName)
	if strings.Contains(name, "nfkc") || (name == "" && m.precompiled) {
		text = norm.NFKC.String(text)
	}
	if m.RemoveExtraSpaces {
		text = strings.Join(strings.Fields(text), " ")
	}
	if text == "" {
		return ""
	}
	if m.AddDummyPrefix {
		text = " " + text
	}
	if m.EscapeWhitespaces {
		text = strings.ReplaceAll(text, " ", spaceSymbol)
	}
	return text
}

type lattice struct {
	score float64
	prev  int
	id    int
	ok    bool
}

// segmentUnigram finds the segmentation maximising the summed piece scores
// (Viterbi over rune boundaries). Characters no piece covers are scored as
// unknown so every input has a segmentation.
func (s *SentencePiece) segmentUnigram(text string) []segment {
	n := len(text)
	best := make([]lattice, n+1)
	best[0].ok = true
	unkScore := float64(s.minScore - unkPenalty)

	for i := 0; i < n; {
		_, size := utf8.DecodeRuneInString(text[i:])
		if !best[i].ok {
			i += size
			continue
		}
		coveredRune := false
		for l := 1; l <= s.maxLen && i+l <= n; l++ {
			if i+l < n && !utf8.RuneStart(text[i+l]) {
				continue
			}
			id, ok := s.pieces[text[i:i+l]]
			if !ok {
				continue
			}
			if l == size {
				coveredRune = true
			}
			sc := best[i].score + float64(s.model.Pieces[id].Score)
			if next := &best[i+l]; !next.ok || sc > next.score {
				*next = lattice{score: sc, prev: i, id: id, ok: true}
			}
		}
		if !coveredRune {
			sc := best[i].score + unkScore
			if next := &best[i+size]; !next.ok || sc > next.score {
				*next = lattice{score: sc, prev: i, id: -1, ok: true}
			}
		}
		i += size
	}

	var segs []segment
	for end := n; end > 0; {
		node := best[end]
		segs = append(segs, segment{start: node.prev, end: end, id: node.id})
		end = node.prev
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return segs
}

// segmentBPE starts from single characters and repeatedly merges the adjacent
// pair whose concatenation is the highest scoring piece, leftmost on ties.
func (s *SentencePiece) segmentBPE(text string) []segment {
	segs := make([]segment, 0, utf8.RuneCountInString(text))
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		segs = append(segs, segment{start: i, end: i + size, id: s.lookup(text[i : i+size])})
		i += size
	}

	for len(segs) > 1 {
		bestIdx := -1
		var bestScore float32
		bestID := -1
		for i := 0; i+1 < len(segs); i++ {
			id, ok := s.pieces[text[segs[i].start:segs[i+1].end]]
			if !ok {
				continue
			}
			sc := s.model.Pieces[id].Score
			if bestIdx < 0 || sc > bestScore {
				bestIdx, bestScore, bestID = i, sc, id
			}
		}
		if bestIdx < 0 {
			break
		}
		segs[bestIdx] = segment{start: segs[bestIdx].start, end: segs[bestIdx+1].end, id: bestID}
		segs = append(segs[:bestIdx+1], segs[bestIdx+2:]...)
	}
	return segs
}

func (s *SentencePiece) lookup(piece string) int {
	if id, ok := s.pieces[piece]; ok {
		return id
	}
	return -1
}
