package cmd

import (
	"fmt"

	"github.com/ardanlabs/bytecodelab/foundation/contract/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

// keygenCmd represents the keygen command.
var keygenCmd = &cobra.Command{
	Use:   "keygen <name>",
	Short: "Generate a new auditor key pair in the key folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, err := openKeys()
		if err != nil {
			return err
		}

		key, err := ks.Generate(args[0])
		if err != nil {
			return err
		}

		log.Infow("keygen", "name", args[0], "folder", keysPath)

		fmt.Println("Address:   ", crypto.PubkeyToAddress(key.PublicKey))
		fmt.Println("Public Key:", hexutil.Encode(signature.PublicKeyBytes(&key.PublicKey)))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
