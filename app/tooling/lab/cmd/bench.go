package cmd

import (
	"crypto/ecdsa"
	"path/filepath"
	"time"

	"github.com/ardanlabs/bytecodelab/business/core/bench"
	"github.com/spf13/cobra"
)

var (
	benchPlan    string
	benchOut     string
	benchAuditor string
	benchTimeout time.Duration
)

// benchCmd represents the bench command.
var benchCmd = &cobra.Command{
	Use:       "bench <audit|codehash|validate>",
	Short:     "Measure the gas cost of fingerprint and attestation operations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{bench.ExperimentAudit, bench.ExperimentCodeHash, bench.ExperimentValidate},
	RunE: func(cmd *cobra.Command, args []string) error {
		plan := bench.DefaultPlan()
		if benchPlan != "" {
			var err error
			if plan, err = bench.LoadPlan(benchPlan); err != nil {
				return err
			}
		}

		var key *ecdsa.PrivateKey
		if benchAuditor != "" {
			ks, err := openKeys()
			if err != nil {
				return err
			}
			if key, err = ks.Key(benchAuditor); err != nil {
				return err
			}
		}

		op, subjects, comparisons, err := plan.Experiment(args[0], key)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		out := benchOut
		if out == "" {
			out = filepath.Join("zlab", args[0]+"_results.json")
		}

		runner, err := bench.New(bench.Config{
			Session:          sess,
			Store:            store,
			Results:          bench.NewResults(out),
			IterationTimeout: benchTimeout,
			EvHandler:        evHandler,
		})
		if err != nil {
			return err
		}

		ms, err := runner.RunMatrix(cmd.Context(), subjects, comparisons, op)

		log.Infow("bench", "experiment", args[0], "measurements", len(ms), "results", out)

		return err
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().StringVar(&benchPlan, "plan", "", "YAML plan overriding the default experiment settings.")
	benchCmd.Flags().StringVarP(&benchOut, "out", "o", "", "Results file. Defaults to zlab/<experiment>_results.json.")
	benchCmd.Flags().StringVar(&benchAuditor, "auditor", "", "Key name signing attestations. A throw away key is used when empty.")
	benchCmd.Flags().DurationVar(&benchTimeout, "timeout", time.Minute, "Timeout of a single iteration.")
}
