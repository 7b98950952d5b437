package storage

import (
	"fmt"

	"github.com/ashita-ai/kiroku/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist, or was
// recorded as permanently missing. It matches model.ErrNotFound.
var ErrNotFound = fmt.Errorf("storage: %w", model.ErrNotFound)
