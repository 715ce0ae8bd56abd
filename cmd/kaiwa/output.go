package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

type outputFormatKind string

const (
	formatText outputFormatKind = "text"
	formatJSON outputFormatKind = "json"
)

// reply is one generated candidate for a context.
type reply struct {
	RunID   string `json:"run_id"`
	Context string `json:"context"`
	Reply   string `json:"reply"`
	Rank    int    `json:"rank"`
	Method  string `json:"method"`
}

type replyWriter interface {
	WriteReply(r reply) error
}

func newReplyWriter(w io.Writer, format string) (replyWriter, error) {
	switch outputFormatKind(format) {
	case formatText, "":
		return textWriter{w: w}, nil
	case formatJSON:
		return jsonWriter{enc: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (text, json)", format)
	}
}

type textWriter struct {
	w io.Writer
}

func (t textWriter) WriteReply(r reply) error {
	_, err := fmt.Fprintf(t.w, "Context: %s \t Reply: %s\n", r.Context, r.Reply)
	return err
}

type jsonWriter struct {
	enc *json.Encoder
}

func (j jsonWriter) WriteReply(r reply) error {
	return j.enc.Encode(r)
}
