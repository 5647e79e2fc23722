package compiler

import (
	"bytes"
	"text/template"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
)

var hardhatTmpl = template.Must(template.New("hardhat").Parse(`require("@nomicfoundation/hardhat-toolbox");

module.exports = {
  solidity: {
    version: "{{.Version}}",
    settings: {
      optimizer: {
        enabled: {{.Optimize}},
        runs: {{.Runs}}
      },
      metadata: {
        bytecodeHash: "{{.BytecodeHash}}"
      }
    }
  }
};
`))

var jsonTmpl = template.Must(template.New("json").Parse(`{
  "optimizer": {
    "enabled": {{.Optimize}},
    "runs": {{.Runs}}
  },
  "metadata": {
    "bytecodeHash": "{{.BytecodeHash}}"
  },
  "outputSelection": {
    "*": {
      "*": ["abi", "evm.bytecode.object", "evm.deployedBytecode.object"]
    }
  }
}
`))

type renderData struct {
	Version      string
	Optimize     bool
	Runs         uint32
	BytecodeHash string
}

// RenderHardhat produces a hardhat configuration file for the settings. With
// the optimizer disabled the runs value is written as zero.
func RenderHardhat(version string, s artifact.Settings) ([]byte, error) {
	return render(hardhatTmpl, version, s)
}

// RenderJSON produces the settings section of a compiler standard JSON input
// for the settings.
func RenderJSON(s artifact.Settings) ([]byte, error) {
	return render(jsonTmpl, "", s)
}

func render(tmpl *template.Template, version string, s artifact.Settings) ([]byte, error) {
	hash, err := bytecodeHash(s.Metadata)
	if err != nil {
		return nil, err
	}

	if version == "" {
		version = DefaultVersion
	}

	data := renderData{
		Version:      version,
		Optimize:     s.Optimize,
		BytecodeHash: hash,
	}
	if s.Optimize {
		data.Runs = s.Runs
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
