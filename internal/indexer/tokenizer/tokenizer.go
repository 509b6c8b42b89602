// Package tokenizer turns field and query text into index terms. Text is
// NFC-normalised, lower-cased unless the index is case sensitive, split on
// whitespace and a fixed punctuation set, and filtered by minimum length and
// stop-words. An optional suffix stemmer can be enabled per index.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMinWordLength applies when an index does not set one.
const DefaultMinWordLength = 2

// Separators are the punctuation characters that split terms in addition to
// whitespace.
const Separators = ".,;:!?'\"()[]{}<>/\\|-_+=*&^%$#@~`"

var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
}

// DefaultStopWords returns a fresh copy of the English stop-word list used by
// the bundled index configurations.
func DefaultStopWords() []string {
	out := make([]string, len(defaultStopWords))
	copy(out, defaultStopWords)
	return out
}

// Options drives a single Tokenize call. The zero value lower-cases, keeps
// every term of at least DefaultMinWordLength runes and has no stop-words.
type Options struct {
	StopWords     map[string]struct{}
	MinWordLength int
	CaseSensitive bool
	Stem          bool
}

// NewOptions builds Options from list-shaped configuration.
func NewOptions(stopWords []string, minWordLength int, caseSensitive, stem bool) Options {
	set := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		set[w] = struct{}{}
	}
	return Options{
		StopWords:     set,
		MinWordLength: minWordLength,
		CaseSensitive: caseSensitive,
		Stem:          stem,
	}
}

// Token is a single normalised term and its position among the kept terms.
type Token struct {
	Term     string
	Position int
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(Separators, r)
}

// Tokenize splits text into terms. It is pure: identical inputs always yield
// identical output, duplicates included.
func Tokenize(text string, opts Options) []Token {
	if text == "" {
		return nil
	}
	text = norm.NFC.String(text)
	if !opts.CaseSensitive {
		text = strings.ToLower(text)
	}
	minLen := opts.MinWordLength
	if minLen <= 0 {
		minLen = DefaultMinWordLength
	}
	words := strings.FieldsFunc(text, isSeparator)
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if utf8.RuneCountInString(word) < minLen {
			continue
		}
		if _, isStop := opts.StopWords[word]; isStop {
			continue
		}
		if opts.Stem {
			word = stem(word)
			if word == "" {
				continue
			}
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms is Tokenize without positions.
func Terms(text string, opts Options) []string {
	tokens := Tokenize(text, opts)
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}

// Unique returns terms with duplicates removed, keeping first occurrence order.
func Unique(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
