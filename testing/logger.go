package testing

import (
	"testing"

	"github.com/arloliu/fabric/internal/logging"
	"github.com/arloliu/fabric/types"
)

// NewTestLogger creates a logger that writes to t.Logf, so component logs
// appear next to the failing assertion.
func NewTestLogger(t testing.TB) types.Logger {
	return logging.NewTest(t)
}
