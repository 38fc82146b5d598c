// Package definer looks up short definitions for vocabulary picked from notes.
package definer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

// ErrUnavailable is returned when no definition could be produced.
var ErrUnavailable = fmt.Errorf("definition unavailable: %w", models.ErrPersistence)

type Definer interface {
	// Define returns a one or two sentence definition of term. passage is the
	// note text the term was picked from and may be empty.
	Define(ctx context.Context, term, passage string) (string, error)
}

// NopDefiner is used when no language model is configured.
type NopDefiner struct{}

func (NopDefiner) Define(ctx context.Context, term, passage string) (string, error) {
	return "", fmt.Errorf("no definer configured for %q: %w", term, ErrUnavailable)
}

// IsUnavailable reports whether err came from a definer that could not answer.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
