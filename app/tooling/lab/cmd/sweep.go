package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/bytecodelab/business/core/sweep"
	"github.com/ardanlabs/bytecodelab/business/sys/compiler"
	"github.com/spf13/cobra"
)

var (
	sweepCompiler   string
	sweepProject    string
	sweepVersion    string
	sweepSolc       string
	sweepSources    []string
	sweepConfigPath string
	sweepReport     string
	sweepTimeout    time.Duration
)

// sweepCmd represents the sweep command.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Compile every optimizer and metadata variant and store the artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		var comp compiler.Compiler
		configPath := sweepConfigPath

		switch sweepCompiler {
		case "hardhat":
			hh := compiler.NewHardhat(sweepProject, sweepVersion)
			comp = hh
			if configPath == "" {
				configPath = hh.ConfigPath()
			}

		case "solc":
			if len(sweepSources) == 0 {
				return errors.New("solc needs at least one --source")
			}
			comp = compiler.NewSolc(sweepSolc, sweepSources...)
			if configPath == "" {
				return errors.New("solc needs a --config path to record the settings")
			}

		default:
			return fmt.Errorf("unknown compiler %q", sweepCompiler)
		}

		orch, err := sweep.New(sweep.Config{
			Compiler:       comp,
			Resource:       sweep.File{Path: configPath},
			Store:          store,
			CompileTimeout: sweepTimeout,
			EvHandler:      evHandler,
		})
		if err != nil {
			return err
		}

		rep, err := orch.Run(cmd.Context(), sweep.Space())

		if sweepReport != "" {
			if werr := rep.Write(sweepReport); werr != nil {
				log.Errorw("sweep", "status", "write report", "ERROR", werr)
			}
		}

		log.Infow("sweep", "run", rep.RunID, "persisted", len(rep.Persisted), "failed", len(rep.Failed), "root", rep.ManifestRoot)

		return err
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepCompiler, "compiler", "hardhat", "Compiler adapter: hardhat or solc.")
	sweepCmd.Flags().StringVar(&sweepProject, "project", ".", "Hardhat project directory.")
	sweepCmd.Flags().StringVar(&sweepVersion, "version", compiler.DefaultVersion, "Solidity version written into the hardhat config.")
	sweepCmd.Flags().StringVar(&sweepSolc, "solc", "solc", "Path to the solc binary.")
	sweepCmd.Flags().StringSliceVar(&sweepSources, "source", nil, "Solidity source files for solc.")
	sweepCmd.Flags().StringVar(&sweepConfigPath, "config", "", "Shared configuration file. Defaults to the hardhat config of the project.")
	sweepCmd.Flags().StringVar(&sweepReport, "report", "zlab/sweep_report.json", "File to write the sweep report to.")
	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", 5*time.Minute, "Timeout of a single compilation.")
}
