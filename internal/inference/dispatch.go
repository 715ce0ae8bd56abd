package inference

import (
	"context"
	"fmt"

	"github.com/samcharles93/kaiwa/internal/model"
)

// Dispatcher turns a decoding method into a full parameter set and forwards it
// to a Generator. It holds no state between calls.
type Dispatcher struct {
	gen     Generator
	special model.SpecialTokens
}

func NewDispatcher(gen Generator, special model.SpecialTokens) *Dispatcher {
	return &Dispatcher{gen: gen, special: special}
}

// Params builds the generation parameters for method.
func (d *Dispatcher) Params(method Method) (Params, error) {
	p := Params{
		MaxLength:         DefaultMaxLength,
		MinLength:         DefaultMinLength,
		RepetitionPenalty: DefaultRepetitionPenalty,
		NoRepeatNGramSize: DefaultNoRepeatNGramSize,
		Special:           d.special,
		Method:            method,
	}
	switch m := method.(type) {
	case BeamSearch:
		if m.NumBeams <= 0 || m.NumReturn <= 0 || m.NumReturn > m.NumBeams {
			return Params{}, fmt.Errorf("%w: beam_search needs 0 < num_return (%d) <= num_beams (%d)",
				ErrInvalidMethod, m.NumReturn, m.NumBeams)
		}
	case TopP:
		if m.P <= 0 || m.P > 1 || m.NumReturn <= 0 {
			return Params{}, fmt.Errorf("%w: top_p needs 0 < p <= 1 and num_return > 0", ErrInvalidMethod)
		}
	default:
		return Params{}, ErrInvalidMethod
	}
	p.NumReturnSequences = method.Candidates()
	return p, nil
}

// Generate runs method over inputIDs.
func (d *Dispatcher) Generate(ctx context.Context, inputIDs []int, method Method) (*Result, error) {
	p, err := d.Params(method)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.gen.Generate(ctx, inputIDs, p)
}
