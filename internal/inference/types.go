package inference

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/samcharles93/kaiwa/internal/model"
)

// ErrInvalidMethod is returned for a decoding method name other than
// beam_search or top_p. Its text is the corrective message shown to users.
var ErrInvalidMethod = errors.New("enter the right decoding method (top_p or beam_search)")

// Shared generation parameters applied to every decoding method.
const (
	DefaultMaxLength         = 256
	DefaultMinLength         = 8
	DefaultRepetitionPenalty = 1.3
	DefaultNoRepeatNGramSize = 3
)

// Method is one of the supported decoding configurations: BeamSearch or TopP.
type Method interface {
	Name() string
	// Candidates is the number of sequences returned per input.
	Candidates() int
	isMethod()
}

// BeamSearch keeps the NumBeams highest scoring prefixes at every step and
// returns the NumReturn best finished hypotheses.
type BeamSearch struct {
	NumBeams  int
	NumReturn int
}

func (BeamSearch) Name() string      { return "beam_search" }
func (b BeamSearch) Candidates() int { return b.NumReturn }
func (BeamSearch) isMethod()         {}

// TopP draws NumReturn independent samples, each step restricted to the
// smallest set of tokens whose cumulative probability reaches P.
type TopP struct {
	P           float32
	Temperature float32
	NumReturn   int
}

func (TopP) Name() string      { return "top_p" }
func (t TopP) Candidates() int { return t.NumReturn }
func (TopP) isMethod()         {}

// ParseMethod maps a method name to its fixed configuration. Names must match
// exactly; surrounding whitespace or different case is rejected.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "beam_search":
		return BeamSearch{NumBeams: 10, NumReturn: 5}, nil
	case "top_p":
		return TopP{P: 0.8, Temperature: 1.0, NumReturn: 10}, nil
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMethod, name)
	}
}

// Params is the full parameter set for one generation call.
type Params struct {
	MaxLength          int
	MinLength          int
	RepetitionPenalty  float32
	NoRepeatNGramSize  int
	NumReturnSequences int
	Special            model.SpecialTokens
	Method             Method
}

// Generator produces candidate output sequences for one input sequence. Every
// returned sequence starts with Special.BOS and is at most MaxLength long.
type Generator interface {
	Generate(ctx context.Context, inputIDs []int, p Params) (*Result, error)
}

type Result struct {
	Sequences [][]int
	Stats     Stats
}

type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

func (s *Stats) finish(start time.Time) {
	s.Duration = time.Since(start)
	if s.Duration.Seconds() > 0 {
		s.TPS = float64(s.TokensGenerated) / s.Duration.Seconds()
	}
}

// NewRNG returns the single random source of a run. Every stochastic step
// draws from the value returned here, so one seed reproduces a run.
func NewRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
