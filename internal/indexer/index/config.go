package index

import (
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/errors"
)

// Config is fixed when an index is created and changes only through
// re-creation or RebuildWith.
type Config struct {
	Fields        []string           `json:"fields" yaml:"fields"`
	Weights       map[string]float64 `json:"weights,omitempty" yaml:"weights"`
	StopWords     []string           `json:"stopWords,omitempty" yaml:"stopWords"`
	MinWordLength int                `json:"minWordLength" yaml:"minWordLength"`
	CaseSensitive bool               `json:"caseSensitive" yaml:"caseSensitive"`
	Stemming      bool               `json:"stemming,omitempty" yaml:"stemming"`
}

// WithDefaults returns a copy with unset values filled in.
func (c Config) WithDefaults() Config {
	out := c.Clone()
	if out.MinWordLength == 0 {
		out.MinWordLength = tokenizer.DefaultMinWordLength
	}
	return out
}

// Clone deep-copies the slices and maps.
func (c Config) Clone() Config {
	out := c
	out.Fields = append([]string(nil), c.Fields...)
	out.StopWords = append([]string(nil), c.StopWords...)
	if c.Weights != nil {
		out.Weights = make(map[string]float64, len(c.Weights))
		for k, v := range c.Weights {
			out.Weights[k] = v
		}
	}
	return out
}

// Validate reports configuration errors as ErrInvalidConfig.
func (c Config) Validate() error {
	if len(c.Fields) == 0 {
		return apperrors.ConfigErrorf("at least one field is required")
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for _, f := range c.Fields {
		if strings.TrimSpace(f) == "" {
			return apperrors.ConfigErrorf("field names must not be empty")
		}
		if _, dup := seen[f]; dup {
			return apperrors.ConfigErrorf("field %q listed twice", f)
		}
		seen[f] = struct{}{}
	}
	if c.MinWordLength < 0 {
		return apperrors.ConfigErrorf("minWordLength must be >= 0, got %d", c.MinWordLength)
	}
	for field, w := range c.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return apperrors.ConfigErrorf("weight for field %q must be a finite non-negative number, got %v", field, w)
		}
	}
	return nil
}

// Weight returns the multiplier for field, 1 when unset.
func (c Config) Weight(field string) float64 {
	if w, ok := c.Weights[field]; ok {
		return w
	}
	return 1
}

func (c Config) tokenizerOptions() tokenizer.Options {
	return tokenizer.NewOptions(c.StopWords, c.MinWordLength, c.CaseSensitive, c.Stemming)
}
