package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ethereum/go-ethereum/common/compiler"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Solc drives the solc binary directly. Settings are passed as command line
// flags so the shared configuration is only written for the record.
type Solc struct {
	Path    string
	Sources []string
}

// NewSolc constructs an adapter compiling the source files with the solc
// binary at the path, or the one on PATH when empty.
func NewSolc(path string, sources ...string) *Solc {
	if path == "" {
		path = "solc"
	}

	return &Solc{
		Path:    path,
		Sources: sources,
	}
}

// Config implements the Compiler interface.
func (sc *Solc) Config(s artifact.Settings) ([]byte, error) {
	return RenderJSON(s)
}

// Args returns the command line used to compile with the settings.
func (sc *Solc) Args(s artifact.Settings) ([]string, error) {
	hash, err := bytecodeHash(s.Metadata)
	if err != nil {
		return nil, err
	}

	args := []string{"--combined-json", "abi,bin,bin-runtime", "--metadata-hash", hash}
	if s.Optimize {
		args = append(args, "--optimize", "--optimize-runs", strconv.FormatUint(uint64(s.Runs), 10))
	}

	return append(args, sc.Sources...), nil
}

// Compile implements the Compiler interface.
func (sc *Solc) Compile(ctx context.Context, s artifact.Settings) (map[string]artifact.Artifact, error) {
	args, err := sc.Args(s)
	if err != nil {
		return nil, &CompileError{Settings: s, Err: err}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, sc.Path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &CompileError{Settings: s, Output: stderr.String(), Err: err}
	}

	arts, err := ParseCombined(stdout.Bytes(), s)
	if err != nil {
		return nil, &CompileError{Settings: s, Output: stderr.String(), Err: err}
	}

	return arts, nil
}

// ParseCombined converts solc combined JSON output into artifacts keyed by
// contract name.
func ParseCombined(output []byte, s artifact.Settings) (map[string]artifact.Artifact, error) {
	contracts, err := compiler.ParseCombinedJSON(output, "", "", "", "")
	if err != nil {
		return nil, fmt.Errorf("parsing combined json: %w", err)
	}

	arts := make(map[string]artifact.Artifact, len(contracts))
	for key, c := range contracts {
		name := key
		if i := strings.LastIndex(key, ":"); i >= 0 {
			name = key[i+1:]
		}

		if c.Code == "" || c.Code == "0x" {
			continue
		}

		code, err := hexutil.Decode(c.Code)
		if err != nil {
			return nil, fmt.Errorf("%s: bytecode: %w", key, err)
		}

		var runtime []byte
		if c.RuntimeCode != "" && c.RuntimeCode != "0x" {
			if runtime, err = hexutil.Decode(c.RuntimeCode); err != nil {
				return nil, fmt.Errorf("%s: runtime bytecode: %w", key, err)
			}
		}

		abiJSON, err := json.Marshal(c.Info.AbiDefinition)
		if err != nil {
			return nil, fmt.Errorf("%s: abi: %w", key, err)
		}

		arts[name] = artifact.Artifact{
			Contract:         name,
			Settings:         s,
			ABI:              abiJSON,
			Bytecode:         code,
			DeployedBytecode: runtime,
		}
	}

	if len(arts) == 0 {
		return nil, fmt.Errorf("no contracts with bytecode in output")
	}

	return arts, nil
}
