package engine

import (
	"fmt"
	"log/slog"
	"strings"
)

// Kinds lists the engine names accepted by New.
var Kinds = []string{"compass", "mayfly"}

// New builds an engine by name. An empty kind selects compass. logger
// receives engine diagnostics; nil selects slog.Default().
func New(kind string, seed int64, logger *slog.Logger) (Engine, error) {
	switch kind {
	case "", "compass":
		return NewCompass(seed), nil
	case "mayfly":
		return NewMayfly(seed, logger), nil
	default:
		return nil, fmt.Errorf("unknown engine: %s (available: %s)", kind, strings.Join(Kinds, ", "))
	}
}
