package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

// codeFlags selects the bytecode a command works on.
type codeFlags struct {
	prefix   string
	contract string
	file     string
	runtime  bool
}

func (cf *codeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&cf.prefix, "prefix", "", "Variant prefix in the artifact store.")
	cmd.Flags().StringVarP(&cf.contract, "contract", "c", "", "Contract name in the artifact store.")
	cmd.Flags().StringVarP(&cf.file, "file", "f", "", "File holding hex or raw bytecode instead of a stored artifact.")
	cmd.Flags().BoolVar(&cf.runtime, "runtime", false, "Use the runtime bytecode of the stored artifact.")
}

// read returns the selected bytecode.
func (cf *codeFlags) read() ([]byte, error) {
	if cf.file != "" {
		return readCodeFile(cf.file)
	}

	if cf.prefix == "" || cf.contract == "" {
		return nil, errors.New("either --file or both --prefix and --contract are required")
	}

	store, err := openStore()
	if err != nil {
		return nil, err
	}

	art, err := store.Load(cf.prefix, cf.contract)
	if err != nil {
		return nil, err
	}

	if cf.runtime {
		if len(art.DeployedBytecode) == 0 {
			return nil, fmt.Errorf("%s/%s has no runtime bytecode", cf.prefix, cf.contract)
		}
		return art.DeployedBytecode, nil
	}

	return art.Bytecode, nil
}

// readCodeFile accepts 0x prefixed hex text or raw bytes.
func readCodeFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := bytes.TrimSpace(data)
	if bytes.HasPrefix(text, []byte("0x")) {
		return hexutil.Decode(string(text))
	}

	return data, nil
}
