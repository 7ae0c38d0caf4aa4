package gen

import (
	"context"

	"github.com/qobs-build/aidlgen/internal/aidl"
)

// Generator hands compilation units to a host build engine. Paths in the
// invocations are relative to the workspace root.
type Generator interface {
	AddUnit(inv *aidl.Invocation)
	Generate() string
	BuildFile() string
	Invoke(ctx context.Context, rootDir, buildDir string) error
}
