package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrParse, http.StatusTeapot, "x"), http.StatusTeapot},
		{"not found", fmt.Errorf("lookup: %w", ErrIndexNotFound), http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"invalid config", Invalidf("bad"), http.StatusBadRequest},
		{"config helper", ConfigErrorf("minWordLength %d", -1), http.StatusBadRequest},
		{"parse", fmt.Errorf("import: %w", ErrParse), http.StatusUnprocessableEntity},
		{"version", ErrUnsupportedVersion, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("create: %w", ConfigErrorf("no fields"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.EqualError(t, err, "create: invalid index configuration: no fields")
}
