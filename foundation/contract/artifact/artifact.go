// Package artifact provides support for the compiled artifacts a sweep
// produces. Artifacts are stored one file per prefix and contract name as a
// JSON document holding the ABI and the hex encoded creation bytecode.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrNotFound is returned when an artifact does not exist in the store.
var ErrNotFound = errors.New("artifact not found")

// Artifact represents one compiled contract.
type Artifact struct {
	Contract         string
	Settings         Settings
	ABI              json.RawMessage
	Bytecode         []byte
	DeployedBytecode []byte
}

// ParseABI decodes the ABI of the artifact.
func (a Artifact) ParseABI() (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(a.ABI))
}

// DeployCode returns the creation bytecode followed by the ABI encoded
// constructor arguments.
func (a Artifact) DeployCode(args ...any) ([]byte, error) {
	if len(a.Bytecode) == 0 {
		return nil, fmt.Errorf("%s: no creation bytecode", a.Contract)
	}

	parsed, err := a.ParseABI()
	if err != nil {
		return nil, fmt.Errorf("%s: parsing abi: %w", a.Contract, err)
	}

	input, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%s: packing constructor: %w", a.Contract, err)
	}

	code := make([]byte, 0, len(a.Bytecode)+len(input))
	code = append(code, a.Bytecode...)
	code = append(code, input...)

	return code, nil
}

// =============================================================================

// Saver is the behavior required to persist artifacts and to take back
// the ones saved for a prefix that could not be completed.
type Saver interface {
	Save(prefix string, a Artifact) error
	Remove(prefix string, contract string) error
}

// Loader is the behavior required to load artifacts.
type Loader interface {
	Load(prefix string, contract string) (Artifact, error)
}

// =============================================================================

// NotFoundError identifies the artifact that could not be located.
type NotFoundError struct {
	Prefix   string
	Contract string
}

// Error implements the error interface.
func (nfe *NotFoundError) Error() string {
	return fmt.Sprintf("artifact %s/%s not found", nfe.Prefix, nfe.Contract)
}

// Is allows errors.Is(err, ErrNotFound) to match.
func (nfe *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SchemaError is returned when an artifact file does not match the
// descriptor schema.
type SchemaError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (se *SchemaError) Error() string {
	return fmt.Sprintf("artifact %s: %s", se.Path, se.Err)
}

// Unwrap provides access to the underlying error.
func (se *SchemaError) Unwrap() error {
	return se.Err
}

// IsSchemaError checks if an error of type SchemaError exists.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
