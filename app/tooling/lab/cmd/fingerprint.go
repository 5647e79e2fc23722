package cmd

import (
	"github.com/ardanlabs/bytecodelab/foundation/contract/fingerprint"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var fingerprintCode codeFlags

// fingerprintCmd represents the fingerprint command.
var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the size, raw hash and stripped hash of bytecode",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := fingerprintCode.read()
		if err != nil {
			return err
		}

		out := struct {
			fingerprint.Fingerprint
			Trailer  hexutil.Bytes         `json:"trailer,omitempty"`
			Metadata *fingerprint.Metadata `json:"metadata,omitempty"`
		}{
			Fingerprint: fingerprint.Compute(code),
		}

		if _, trailer := fingerprint.Strip(code); trailer != nil {
			out.Trailer = trailer
			if md, err := fingerprint.DecodeMetadata(trailer); err == nil {
				out.Metadata = &md
			}
		}

		return printJSON(out)
	},
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)
	fingerprintCode.bind(fingerprintCmd)
}
