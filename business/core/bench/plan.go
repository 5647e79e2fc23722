package bench

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/validate"
	"gopkg.in/yaml.v3"
)

// Token describes the token contract deployed as the subject of a
// measurement and its constructor arguments.
type Token struct {
	Contract string `yaml:"contract" validate:"required"`
	Name     string `yaml:"name" validate:"required"`
	Symbol   string `yaml:"symbol" validate:"required"`
	Supply   string `yaml:"supply" validate:"required,numeric"`
}

// Args returns the constructor arguments of the token.
func (t Token) Args() ([]any, error) {
	supply, ok := new(big.Int).SetString(t.Supply, 10)
	if !ok {
		return nil, fmt.Errorf("token supply %q is not a decimal integer", t.Supply)
	}
	return []any{t.Name, t.Symbol, supply}, nil
}

// AuditPlan configures the attestation experiment.
type AuditPlan struct {
	Auditor       string   `yaml:"auditor" validate:"required"`
	AuditCheck    string   `yaml:"audit_check" validate:"required"`
	AuditorPrefix string   `yaml:"auditor_prefix" validate:"required"`
	Token         Token    `yaml:"token"`
	Subjects      []string `yaml:"subjects" validate:"required,min=1,dive,required"`
	Comparisons   []string `yaml:"comparisons" validate:"required,min=1,dive,required"`
}

// ValidatorPlan configures an experiment measuring the validator contract
// built with and without the optimizer against each token prefix.
type ValidatorPlan struct {
	Validator         string   `yaml:"validator" validate:"required"`
	OptimizedPrefix   string   `yaml:"optimized_prefix" validate:"required"`
	UnoptimizedPrefix string   `yaml:"unoptimized_prefix" validate:"required"`
	Threshold         uint64   `yaml:"threshold"`
	Token             Token    `yaml:"token"`
	Subjects          []string `yaml:"subjects" validate:"required,min=1,dive,required"`
}

// Plan holds the settings of every experiment.
type Plan struct {
	Audit    AuditPlan     `yaml:"audit"`
	CodeHash ValidatorPlan `yaml:"codehash"`
	Validate ValidatorPlan `yaml:"validate"`
}

// DefaultPlan returns the experiment settings used when no plan file is
// provided.
func DefaultPlan() Plan {
	optimized := artifact.Optimized(artifact.Embedded, 2147483647).Prefix()
	unoptimized := artifact.Unoptimized(artifact.Embedded).Prefix()
	prefixes := artifact.Prefixes(artifact.Embedded)

	return Plan{
		Audit: AuditPlan{
			Auditor:       "Auditor",
			AuditCheck:    "AuditCheck",
			AuditorPrefix: optimized,
			Token: Token{
				Contract: "SignedToken",
				Name:     "Test Token",
				Symbol:   "TT",
				Supply:   "1000000000000000000000",
			},
			Subjects:    prefixes,
			Comparisons: prefixes,
		},
		CodeHash: ValidatorPlan{
			Validator:         "TokenValidator",
			OptimizedPrefix:   optimized,
			UnoptimizedPrefix: unoptimized,
			Threshold:         0,
			Token: Token{
				Contract: "ozTokenA",
				Name:     "ozTokenA",
				Symbol:   "ozt",
				Supply:   "1000000000000000000000000",
			},
			Subjects: prefixes,
		},
		Validate: ValidatorPlan{
			Validator:         "TokenValidator",
			OptimizedPrefix:   optimized,
			UnoptimizedPrefix: unoptimized,
			Threshold:         12,
			Token: Token{
				Contract: "ozTokenA",
				Name:     "ozToken",
				Symbol:   "ozt",
				Supply:   "1000000",
			},
			Subjects: prefixes,
		},
	}
}

// LoadPlan reads a YAML plan file. Settings missing from the file keep
// their default values.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("reading plan: %w", err)
	}

	return ParsePlan(data)
}

// ParsePlan decodes a YAML plan over the defaults and validates it.
func ParsePlan(data []byte) (Plan, error) {
	plan := DefaultPlan()

	if err := yaml.Unmarshal(data, &plan); err != nil {
		return Plan{}, fmt.Errorf("decoding plan: %w", err)
	}

	if err := validate.Check(plan); err != nil {
		return Plan{}, fmt.Errorf("validating plan: %w", err)
	}

	return plan, nil
}

// Set of experiment names.
const (
	ExperimentAudit    = "audit"
	ExperimentCodeHash = "codehash"
	ExperimentValidate = "validate"
)

// Experiment returns the operation and the prefix matrix of the named
// experiment. The key signs attestations for the audit experiment and is
// generated when nil.
func (p Plan) Experiment(name string, key *ecdsa.PrivateKey) (op Operation, subjects []string, comparisons []string, err error) {
	switch name {
	case ExperimentAudit:
		ac, err := NewAuditCheck(p.Audit, key)
		if err != nil {
			return nil, nil, nil, err
		}
		return ac, p.Audit.Subjects, p.Audit.Comparisons, nil

	case ExperimentCodeHash:
		return NewCodeHash(p.CodeHash), p.CodeHash.Subjects, nil, nil

	case ExperimentValidate:
		return NewValidate(p.Validate), p.Validate.Subjects, nil, nil
	}

	return nil, nil, nil, fmt.Errorf("unknown experiment %q", name)
}
