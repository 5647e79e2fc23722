// Package cmd contains the lab commands.
package cmd

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/chainenv"
	"github.com/ardanlabs/bytecodelab/foundation/contract/keystore"
	"github.com/ardanlabs/bytecodelab/foundation/logger"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	artifactsPath string
	keysPath      string
	rpcURL        string
	resetMethod   string
	deployerName  string
	gasLimit      uint64
)

// log is constructed before any command runs.
var log *zap.SugaredLogger

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "lab",
	Short:         "Bytecode fingerprint, attestation and optimizer sweep lab",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = logger.New("LAB", "stderr")
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&artifactsPath, "artifacts", "a", "zlab/artifacts", "Path to the artifact store.")
	rootCmd.PersistentFlags().StringVarP(&keysPath, "keys", "k", "zlab/keys", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "Url of a development node. A simulated chain is used when empty.")
	rootCmd.PersistentFlags().StringVar(&resetMethod, "reset", chainenv.ResetHardhat, "Reset method of the development node.")
	rootCmd.PersistentFlags().StringVar(&deployerName, "deployer", "deployer", "Name of the key that deploys contracts.")
	rootCmd.PersistentFlags().Uint64Var(&gasLimit, "gas-limit", chainenv.DefaultGasLimit, "Block gas limit of the simulated chain.")
}

// =============================================================================

func openStore() (*artifact.Disk, error) {
	return artifact.NewDisk(artifactsPath)
}

func openKeys() (*keystore.KeyStore, error) {
	return keystore.New(keysPath)
}

// openSession connects to the configured chain. A simulated chain funds a
// throw away deployer when the deployer key does not exist.
func openSession(ctx context.Context) (*chainenv.Session, error) {
	key, err := deployerKey()
	if err != nil {
		return nil, err
	}

	t := chainenv.Target{
		URL:         rpcURL,
		ResetMethod: resetMethod,
		GasLimit:    gasLimit,
	}

	sess, err := chainenv.Open(ctx, t, key)
	if err != nil {
		return nil, err
	}

	log.Infow("session", "status", "opened", "rpc", rpcURL, "from", sess.From())

	return sess, nil
}

func deployerKey() (*ecdsa.PrivateKey, error) {
	ks, err := openKeys()
	if err != nil {
		return nil, err
	}

	key, err := ks.Key(deployerName)
	if err == nil {
		return key, nil
	}

	if rpcURL != "" {
		return nil, fmt.Errorf("deployer key: %w", err)
	}

	return crypto.GenerateKey()
}

// evHandler routes progress messages from the jobs into the log.
func evHandler(v string, args ...any) {
	log.Infow(fmt.Sprintf(v, args...))
}

// printJSON writes the value to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
