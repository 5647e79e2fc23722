package cmd

import (
	"github.com/ardanlabs/bytecodelab/business/core/grouping"
	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/equivalence"
	"github.com/spf13/cobra"
)

var (
	groupSource   string
	groupHash     string
	groupMode     string
	groupDatasets string
	groupOut      string
	groupWorkers  int
)

// groupCmd represents the group command.
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Classify the stored variants of each contract into equivalence classes",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := grouping.ParseSource(groupSource)
		if err != nil {
			return err
		}

		hash, err := equivalence.ParseHashChoice(groupHash)
		if err != nil {
			return err
		}

		datasets, err := loadDatasets(groupDatasets, groupMode)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}

		cfg := grouping.Config{
			Store:     store,
			Source:    source,
			Hash:      hash,
			Workers:   groupWorkers,
			EvHandler: evHandler,
		}

		if source == grouping.Deployed {
			sess, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()
			cfg.Session = sess
		}

		job, err := grouping.New(cfg)
		if err != nil {
			return err
		}

		got, err := job.RunReport(cmd.Context(), datasets, groupOut)

		log.Infow("group", "datasets", len(got), "report", groupOut)

		return err
	},
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.Flags().StringVar(&groupSource, "source", string(grouping.Deployed), "Code source: deployed or stored.")
	groupCmd.Flags().StringVar(&groupHash, "hash", "raw", "Hash used for the class key: raw or stripped.")
	groupCmd.Flags().StringVar(&groupMode, "mode", string(artifact.Embedded), "Metadata mode of the default datasets.")
	groupCmd.Flags().StringVar(&groupDatasets, "datasets", "", "YAML file listing the datasets to classify.")
	groupCmd.Flags().StringVarP(&groupOut, "out", "o", "zlab/contract_groups.json", "File to write the groups to.")
	groupCmd.Flags().IntVar(&groupWorkers, "workers", 0, "Fingerprint workers. Zero uses every CPU.")
}

// loadDatasets reads the datasets file or returns the defaults for the
// metadata mode.
func loadDatasets(path string, mode string) ([]grouping.Dataset, error) {
	if path != "" {
		return grouping.LoadDatasets(path)
	}

	m, err := artifact.ParseMetadataMode(mode)
	if err != nil {
		return nil, err
	}

	return grouping.DefaultDatasets(m), nil
}
