package tokenizer

// Tokenizer converts between text and token ids for one fixed vocabulary.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}
