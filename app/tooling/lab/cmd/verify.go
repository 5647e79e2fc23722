package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/bytecodelab/foundation/contract/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	verifyCode    codeFlags
	verifyRecord  string
	verifyTrusted string
	verifyKeyName string
)

// verifyCmd represents the verify command.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check an attestation against bytecode and a trusted key",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := verifyCode.read()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(verifyRecord)
		if err != nil {
			return err
		}

		var rec signature.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decoding record: %w", err)
		}

		trusted, err := trustedKey()
		if err != nil {
			return err
		}

		valid := signature.Verify(code, rec, trusted)
		log.Infow("verify", "subject", rec.SubjectHash, "valid", valid)

		fmt.Println("Valid:", valid)
		if !valid {
			return errors.New("attestation rejected")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCode.bind(verifyCmd)
	verifyCmd.Flags().StringVarP(&verifyRecord, "record", "r", "", "File holding the attestation record.")
	verifyCmd.Flags().StringVar(&verifyTrusted, "trusted", "", "Hex encoded trusted public key.")
	verifyCmd.Flags().StringVar(&verifyKeyName, "key", "", "Name of a key in the key folder to trust.")
	verifyCmd.MarkFlagRequired("record")
}

func trustedKey() ([]byte, error) {
	switch {
	case verifyTrusted != "":
		return hexutil.Decode(verifyTrusted)

	case verifyKeyName != "":
		ks, err := openKeys()
		if err != nil {
			return nil, err
		}
		key, err := ks.Key(verifyKeyName)
		if err != nil {
			return nil, err
		}
		return signature.PublicKeyBytes(&key.PublicKey), nil
	}

	return nil, errors.New("either --trusted or --key is required")
}
