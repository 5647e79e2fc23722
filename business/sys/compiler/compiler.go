// Package compiler provides adapters that drive an external contract compiler
// with an explicit set of optimizer settings. The compiler is treated as a
// black box: settings go in, artifacts come out.
package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
)

// DefaultVersion is the compiler version written into generated
// configuration.
const DefaultVersion = "0.8.20"

// Compiler is the behavior required to build every contract of a project
// with one set of settings.
type Compiler interface {

	// Config returns the content of the shared configuration resource that
	// corresponds to the settings.
	Config(s artifact.Settings) ([]byte, error)

	// Compile builds the project and returns the artifacts by contract name.
	Compile(ctx context.Context, s artifact.Settings) (map[string]artifact.Artifact, error)
}

// =============================================================================

// CompileError is returned when a compile invocation for one set of settings
// fails. It is not fatal to a sweep.
type CompileError struct {
	Settings artifact.Settings
	Output   string
	Err      error
}

// Error implements the error interface.
func (ce *CompileError) Error() string {
	return fmt.Sprintf("compile %s: %s", ce.Settings.Prefix(), ce.Err)
}

// Unwrap provides access to the underlying error.
func (ce *CompileError) Unwrap() error {
	return ce.Err
}

// IsCompileError checks if an error of type CompileError exists.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// bytecodeHash maps a metadata mode to the compiler's metadata hash setting.
func bytecodeHash(mode artifact.MetadataMode) (string, error) {
	switch mode {
	case artifact.Embedded:
		return "ipfs", nil
	case artifact.Stripped:
		return "none", nil
	}
	return "", fmt.Errorf("unknown metadata mode %q", mode)
}
