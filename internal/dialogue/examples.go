package dialogue

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

var exampleTurns = []string{
	"どこ住んでるの?",
	"長久手!",
	"いいところ住んでるじゃん",
	"wwでも駅からかなり遠いよ",
	"確かに!駅から遠いとね、、、",
}

// ExampleContexts returns the built-in conversation: five contexts, each one
// turn longer than the previous.
func ExampleContexts() []Context {
	out := make([]Context, len(exampleTurns))
	for i := range exampleTurns {
		out[i] = append(Context(nil), exampleTurns[:i+1]...)
	}
	return out
}

// LoadContexts reads a JSON file that is either an array of contexts
// or an object with a "contexts" field. Each context is an array of turns.
func LoadContexts(path string) ([]Context, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse contexts json: %w", err)
	}
	switch v := payload.(type) {
	case []any:
		return decodeContexts(v)
	case map[string]any:
		if list, ok := v["contexts"]; ok {
			if items, ok := list.([]any); ok {
				return decodeContexts(items)
			}
			return nil, fmt.Errorf("contexts field must be an array")
		}
		return nil, fmt.Errorf("contexts json object missing \"contexts\" field")
	default:
		return nil, fmt.Errorf("contexts json must be array or object")
	}
}

func decodeContexts(items []any) ([]Context, error) {
	out := make([]Context, 0, len(items))
	for i, item := range items {
		turns, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("context %d: must be an array of strings", i)
		}
		ctx := make(Context, 0, len(turns))
		for j, turn := range turns {
			s, ok := turn.(string)
			if !ok {
				return nil, fmt.Errorf("context %d turn %d: must be a string", i, j)
			}
			ctx = append(ctx, s)
		}
		out = append(out, ctx)
	}
	return out, nil
}
