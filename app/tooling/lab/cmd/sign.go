package cmd

import (
	"encoding/json"
	"os"

	"github.com/ardanlabs/bytecodelab/foundation/contract/signature"
	"github.com/spf13/cobra"
)

var (
	signCode    codeFlags
	signKeyName string
	signOut     string
)

// signCmd represents the sign command.
var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Attest bytecode with an auditor key",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := signCode.read()
		if err != nil {
			return err
		}

		ks, err := openKeys()
		if err != nil {
			return err
		}

		key, err := ks.Key(signKeyName)
		if err != nil {
			return err
		}

		rec, err := signature.Sign(code, key)
		if err != nil {
			return err
		}

		log.Infow("sign", "auditor", signKeyName, "subject", rec.SubjectHash)

		if signOut == "" {
			return printJSON(rec)
		}

		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(signOut, data, 0644)
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCode.bind(signCmd)
	signCmd.Flags().StringVar(&signKeyName, "key", "auditor", "Name of the auditor key.")
	signCmd.Flags().StringVarP(&signOut, "out", "o", "", "File to write the attestation record to.")
}
