package embedding

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE used by the OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// Tokenizer wraps a tiktoken encoding. BPE ranks are loaded from the
// embedded offline tables, so no network access is needed.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

func NewTokenizer(encoding string) (*Tokenizer, error) {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %q: %w", encoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
