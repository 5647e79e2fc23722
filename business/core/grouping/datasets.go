package grouping

import (
	"fmt"
	"os"

	"github.com/ardanlabs/bytecodelab/foundation/validate"
	"gopkg.in/yaml.v3"
)

// datasetFile is the document holding configured datasets.
type datasetFile struct {
	Datasets []Dataset `yaml:"datasets" validate:"required,min=1,dive"`
}

// LoadDatasets reads a YAML datasets file.
func LoadDatasets(path string) ([]Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading datasets: %w", err)
	}

	return ParseDatasets(data)
}

// ParseDatasets decodes and validates a YAML datasets document.
func ParseDatasets(data []byte) ([]Dataset, error) {
	var doc datasetFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding datasets: %w", err)
	}

	if err := validate.Check(doc); err != nil {
		return nil, fmt.Errorf("validating datasets: %w", err)
	}

	return doc.Datasets, nil
}
