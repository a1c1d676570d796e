package ner

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// WordPieceTokenizer implements a BERT-compatible tokenizer that keeps the
// byte offset of every token in the source text.
type WordPieceTokenizer struct {
	vocab        map[string]int64
	lowerCase    bool
	clsID        int64
	sepID        int64
	padID        int64
	unkID        int64
	continuation string
}

// tokenOffset is a [Start, End) byte range; special and padding tokens use -1
type tokenOffset struct {
	Start int
	End   int
}

type wordSpan struct {
	Text  string
	Start int
	End   int
}

type wordPieceOffset struct {
	id    int64
	start int
	end   int
}

// LoadWordPieceTokenizer builds the tokenizer from vocab.txt
func LoadWordPieceTokenizer(path string, lowerCase bool) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var idx int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		vocab[token] = idx
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}
	return NewWordPieceTokenizer(vocab, lowerCase), nil
}

// LoadTokenizerFromDir looks for vocab.txt in dir or dir/tokenizer
func LoadTokenizerFromDir(dir string, lowerCase bool) (*WordPieceTokenizer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("tokenizer dir is empty")
	}
	for _, path := range []string{
		filepath.Join(dir, "vocab.txt"),
		filepath.Join(dir, "tokenizer", "vocab.txt"),
	} {
		if _, err := os.Stat(path); err == nil {
			return LoadWordPieceTokenizer(path, lowerCase)
		}
	}
	return nil, fmt.Errorf("vocab.txt not found in %s", dir)
}

func NewWordPieceTokenizer(vocab map[string]int64, lowerCase bool) *WordPieceTokenizer {
	return &WordPieceTokenizer{
		vocab:        vocab,
		lowerCase:    lowerCase,
		continuation: "##",
		clsID:        vocab["[CLS]"],
		sepID:        vocab["[SEP]"],
		padID:        vocab["[PAD]"],
		unkID:        vocab["[UNK]"],
	}
}

// EncodeWithOffsets converts text into token IDs, an attention mask and the
// offset of each token, all of length seqLen. Text beyond seqLen is dropped.
func (t *WordPieceTokenizer) EncodeWithOffsets(text string, seqLen int) ([]int64, []int64, []tokenOffset) {
	if seqLen < 2 {
		return nil, nil, nil
	}

	tokens := []int64{t.clsID}
	offsets := []tokenOffset{{Start: -1, End: -1}}

words:
	for _, w := range splitWordsWithOffsets(text) {
		token := w.Text
		if t.lowerCase {
			token = strings.ToLower(token)
		}
		for _, p := range t.wordPieceOffsets(token) {
			if len(tokens) >= seqLen-1 {
				break words
			}
			tokens = append(tokens, p.id)
			offsets = append(offsets, tokenOffset{Start: w.Start + p.start, End: w.Start + p.end})
		}
	}

	tokens = append(tokens, t.sepID)
	offsets = append(offsets, tokenOffset{Start: -1, End: -1})

	attn := make([]int64, seqLen)
	for i := range tokens {
		attn[i] = 1
	}
	for len(tokens) < seqLen {
		tokens = append(tokens, t.padID)
		offsets = append(offsets, tokenOffset{Start: -1, End: -1})
	}

	return tokens, attn, offsets
}

// wordPieceOffsets splits one word greedily, longest prefix first. Offsets
// are relative to the word. Lowercasing keeps byte length for the scripts the
// vocabularies cover, so relative offsets stay valid.
func (t *WordPieceTokenizer) wordPieceOffsets(token string) []wordPieceOffset {
	if id, ok := t.vocab[token]; ok {
		return []wordPieceOffset{{id: id, start: 0, end: len(token)}}
	}

	var pieces []wordPieceOffset
	start := 0
	for start < len(token) {
		end := len(token)
		found := false
		for end > start {
			sub := token[start:end]
			if start > 0 {
				sub = t.continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				pieces = append(pieces, wordPieceOffset{id: id, start: start, end: end})
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			return []wordPieceOffset{{id: t.unkID, start: 0, end: len(token)}}
		}
	}
	return pieces
}

// splitWordsWithOffsets splits on whitespace and isolates punctuation, the
// way BERT's basic tokenizer does, so "John," yields "John" and ",".
func splitWordsWithOffsets(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	flush := func(end int) {
		if start >= 0 {
			spans = append(spans, wordSpan{Text: text[start:end], Start: start, End: end})
			start = -1
		}
	}

	for idx, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(idx)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush(idx)
			end := idx + len(string(r))
			spans = append(spans, wordSpan{Text: text[idx:end], Start: idx, End: end})
		default:
			if start < 0 {
				start = idx
			}
		}
	}
	flush(len(text))
	return spans
}
