package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hardhat drives a hardhat project. The project reads its settings from
// hardhat.config.js, so the caller must write Config's output there before
// calling Compile.
type Hardhat struct {
	Dir     string
	Version string
	Command []string
}

// NewHardhat constructs an adapter for the project in the directory using
// the default compile command.
func NewHardhat(dir string, version string) *Hardhat {
	return &Hardhat{
		Dir:     dir,
		Version: version,
		Command: []string{"npx", "hardhat", "compile"},
	}
}

// ConfigPath returns the path of the project configuration file.
func (h *Hardhat) ConfigPath() string {
	return filepath.Join(h.Dir, "hardhat.config.js")
}

// Config implements the Compiler interface.
func (h *Hardhat) Config(s artifact.Settings) ([]byte, error) {
	return RenderHardhat(h.Version, s)
}

// Compile implements the Compiler interface.
func (h *Hardhat) Compile(ctx context.Context, s artifact.Settings) (map[string]artifact.Artifact, error) {
	if len(h.Command) == 0 {
		return nil, &CompileError{Settings: s, Err: fmt.Errorf("no compile command")}
	}

	cmd := exec.CommandContext(ctx, h.Command[0], h.Command[1:]...)
	cmd.Dir = h.Dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &CompileError{Settings: s, Output: string(out), Err: err}
	}

	arts, err := h.collect(s)
	if err != nil {
		return nil, &CompileError{Settings: s, Output: string(out), Err: err}
	}

	return arts, nil
}

// =============================================================================

// hardhatArtifact is the subset of a hardhat artifact file that is used.
type hardhatArtifact struct {
	ContractName     string          `json:"contractName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

// collect reads every contract artifact the last compile produced.
func (h *Hardhat) collect(s artifact.Settings) (map[string]artifact.Artifact, error) {
	root := filepath.Join(h.Dir, "artifacts", "contracts")
	arts := make(map[string]artifact.Artifact)

	fn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".dbg.json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var ha hardhatArtifact
		if err := json.Unmarshal(data, &ha); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		// Interfaces and abstract contracts have no bytecode.
		if ha.ContractName == "" || ha.Bytecode == "" || ha.Bytecode == "0x" {
			return nil
		}

		code, err := hexutil.Decode(ha.Bytecode)
		if err != nil {
			return fmt.Errorf("%s: bytecode: %w", path, err)
		}

		var runtime []byte
		if ha.DeployedBytecode != "" && ha.DeployedBytecode != "0x" {
			if runtime, err = hexutil.Decode(ha.DeployedBytecode); err != nil {
				return fmt.Errorf("%s: deployed bytecode: %w", path, err)
			}
		}

		arts[ha.ContractName] = artifact.Artifact{
			Contract:         ha.ContractName,
			Settings:         s,
			ABI:              ha.ABI,
			Bytecode:         code,
			DeployedBytecode: runtime,
		}

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("collecting artifacts: %w", err)
	}

	if len(arts) == 0 {
		return nil, fmt.Errorf("no artifacts under %s", root)
	}

	return arts, nil
}
