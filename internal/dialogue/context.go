package dialogue

import (
	"fmt"
	"strings"

	"github.com/samcharles93/kaiwa/internal/model"
	"github.com/samcharles93/kaiwa/internal/tokenizer"
)

// Separator is the display form of the turn separator token.
const Separator = " [SEPT] "

// Context is a conversation prefix, oldest turn first.
type Context []string

// EncodeContext flattens turns into one input sequence: each turn's ids are
// followed by the separator id and the sequence ends with a single bos id. An
// empty context encodes to just bos. No length limit is applied here.
func EncodeContext(tok tokenizer.Tokenizer, special model.SpecialTokens, turns Context) ([]int, error) {
	ids := make([]int, 0, 16*len(turns)+1)
	for i, turn := range turns {
		enc, err := tok.Encode(turn)
		if err != nil {
			return nil, fmt.Errorf("encode turn %d: %w", i, err)
		}
		ids = append(ids, enc...)
		ids = append(ids, special.Sept)
	}
	return append(ids, special.BOS), nil
}

// JoinContext renders turns for display.
func JoinContext(turns Context) string {
	return strings.Join(turns, Separator)
}
