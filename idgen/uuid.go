package idgen

import (
	"context"

	"github.com/google/uuid"
)

// UUID returns random v4 ids. Not usable with integer primary keys.
type UUID struct{}

var _ Generator = UUID{}

func (UUID) Next(context.Context, string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
