package model

import "context"

// Seq2Seq is an encoder/decoder language model. StartDecoder encodes the
// input once and returns a decoder positioned before its first token.
type Seq2Seq interface {
	StartDecoder(ctx context.Context, inputIDs []int) (DecoderState, error)
	VocabSize() int
}

// DecoderState is an incremental decoding position. Next feeds one token and
// returns the logits for the following token; the returned slice belongs to
// the caller. Clone returns an independent copy so beams can diverge.
type DecoderState interface {
	Next(ctx context.Context, token int) ([]float32, error)
	Clone() DecoderState
}
