// Package grouping classifies the variants of each contract produced by a
// sweep into equivalence classes by size and hash, either from the code a
// deployment leaves on chain or from the stored artifact.
package grouping

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/chainenv"
	"github.com/ardanlabs/bytecodelab/foundation/contract/equivalence"
	"github.com/ardanlabs/bytecodelab/foundation/contract/fingerprint"
	"github.com/ethereum/go-ethereum/common"
)

// EventHandler defines a function that is called when events
// occur during a grouping run.
type EventHandler func(v string, args ...any)

// Source selects where the code of a variant is taken from.
type Source string

// Set of code sources.
const (
	Deployed Source = "deployed"
	Stored   Source = "stored"
)

// ParseSource converts a name into a source.
func ParseSource(name string) (Source, error) {
	switch s := Source(name); s {
	case Deployed, Stored:
		return s, nil
	}
	return "", fmt.Errorf("unknown code source %q", name)
}

// Session is the chain behavior required to obtain deployed code.
type Session interface {
	Reset(ctx context.Context) error
	Deploy(ctx context.Context, code []byte) (chainenv.Receipt, error)
	Code(ctx context.Context, address common.Address) ([]byte, error)
}

// Dataset names one contract and the prefixes of the variants to classify.
type Dataset struct {
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Contract string   `yaml:"contract" json:"contract" validate:"required"`
	Args     []string `yaml:"args" json:"args"`
	Prefixes []string `yaml:"prefixes" json:"prefixes" validate:"required,min=1,dive,required"`
}

// DefaultDatasets returns the contracts classified when none are configured.
func DefaultDatasets(mode artifact.MetadataMode) []Dataset {
	prefixes := artifact.Prefixes(mode)

	return []Dataset{
		{Name: "token", Contract: "SignedToken", Args: []string{"testtoken", "tt", "1000000000000000000000"}, Prefixes: prefixes},
		{Name: "auditCheck", Contract: "AuditCheck", Prefixes: prefixes},
		{Name: "tokenValidator", Contract: "TokenValidator", Args: []string{"0"}, Prefixes: prefixes},
		{Name: "ozTokenA", Contract: "ozTokenA", Args: []string{"ozTokenA", "ozt", "1000000000000000000000000"}, Prefixes: prefixes},
	}
}

// =============================================================================

// Config represents the collaborators of a job.
type Config struct {
	Store     artifact.Loader
	Session   Session
	Source    Source
	Hash      equivalence.HashChoice
	Workers   int
	EvHandler EventHandler
}

// Job classifies datasets.
type Job struct {
	store     artifact.Loader
	sess      Session
	source    Source
	hash      equivalence.HashChoice
	workers   int
	evHandler EventHandler
}

// New constructs a grouping job. A session is only required for the
// deployed source.
func New(cfg Config) (*Job, error) {
	if cfg.Store == nil {
		return nil, errors.New("artifact store is required")
	}

	source := cfg.Source
	if source == "" {
		source = Deployed
	}
	if source == Deployed && cfg.Session == nil {
		return nil, errors.New("session is required for deployed code")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	j := Job{
		store:     cfg.Store,
		sess:      cfg.Session,
		source:    source,
		hash:      cfg.Hash,
		workers:   cfg.Workers,
		evHandler: ev,
	}

	return &j, nil
}

// Run classifies every dataset. Variants that cannot be loaded or deployed
// are logged and left out. A failed chain reset ends the run.
func (j *Job) Run(ctx context.Context, datasets []Dataset) ([]equivalence.Dataset, error) {
	out := make([]equivalence.Dataset, 0, len(datasets))

	for _, ds := range datasets {
		classes, err := j.classify(ctx, ds)
		if err != nil {
			return out, fmt.Errorf("dataset %s: %w", ds.Name, err)
		}

		j.evHandler("grouping: Run: dataset[%s]: classes[%d]", ds.Name, len(classes))
		out = append(out, equivalence.Dataset{Name: ds.Name, Classes: classes})
	}

	return out, nil
}

// RunReport runs the datasets and writes the grouping report to the path.
// The datasets finished before a failed reset or a cancelled context are
// still written, and the run error is returned joined with any write error.
func (j *Job) RunReport(ctx context.Context, datasets []Dataset, path string) ([]equivalence.Dataset, error) {
	got, err := j.Run(ctx, datasets)
	if len(got) == 0 {
		return got, err
	}

	if werr := equivalence.WriteReport(path, got); werr != nil {
		j.evHandler("grouping: RunReport: write: ERROR: %s", werr)
		return got, errors.Join(err, fmt.Errorf("writing report: %w", werr))
	}

	j.evHandler("grouping: RunReport: report[%s]: datasets[%d]", path, len(got))

	return got, err
}

func (j *Job) classify(ctx context.Context, ds Dataset) ([]equivalence.Class, error) {
	if j.source == Deployed {
		if err := j.sess.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset: %w", err)
		}
	}

	codes := make(map[string][]byte, len(ds.Prefixes))
	var order []string

	for _, prefix := range ds.Prefixes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, err := j.code(ctx, prefix, ds)
		if err != nil {
			j.evHandler("grouping: Run: dataset[%s]: prefix[%s]: SKIPPED: %s", ds.Name, prefix, err)
			continue
		}

		if _, exists := codes[prefix]; !exists {
			order = append(order, prefix)
		}
		codes[prefix] = code
	}

	fps, err := fingerprint.ComputeAll(ctx, codes, j.workers)
	if err != nil {
		return nil, err
	}

	items := make([]equivalence.Item, len(order))
	for i, prefix := range order {
		fp := fps[prefix]
		items[i] = equivalence.Item{Prefix: prefix, Fingerprint: fp}

		j.evHandler("grouping: Run: dataset[%s]: prefix[%s]: size[%d]: hash[%s]", ds.Name, prefix, fp.ByteSize, equivalence.KeyOf(fp, j.hash).Hash)
	}

	return equivalence.Group(items, j.hash), nil
}

// code returns the code of one variant from the configured source. Stored
// code is the runtime bytecode when the artifact has it and the creation
// bytecode otherwise.
func (j *Job) code(ctx context.Context, prefix string, ds Dataset) ([]byte, error) {
	art, err := j.store.Load(prefix, ds.Contract)
	if err != nil {
		return nil, err
	}

	if j.source == Stored {
		if len(art.DeployedBytecode) > 0 {
			return art.DeployedBytecode, nil
		}
		return art.Bytecode, nil
	}

	args, err := art.ConstructorArgs(ds.Args)
	if err != nil {
		return nil, err
	}

	code, err := art.DeployCode(args...)
	if err != nil {
		return nil, err
	}

	receipt, err := j.sess.Deploy(ctx, code)
	if err != nil {
		return nil, err
	}

	deployed, err := j.sess.Code(ctx, receipt.Address)
	if err != nil {
		return nil, err
	}

	if len(deployed) == 0 {
		return nil, fmt.Errorf("no code at %s", receipt.Address)
	}

	return deployed, nil
}
