package bench_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardanlabs/bytecodelab/business/core/bench"
	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/chainenv"
	"github.com/ardanlabs/bytecodelab/foundation/validate"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const deployerHexKey = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"

// answerInit deploys runtime code that returns the word 42 for any call, so
// it stands in for every contract below regardless of constructor arguments.
var answerInit = []byte{
	0x60, 0x0a, 0x60, 0x0c, 0x60, 0x00, 0x39, 0x60, 0x0a, 0x60, 0x00, 0xf3,
	0x60, 0x2a, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3,
}

var abis = map[string]string{
	"Auditor":        `[{"inputs":[{"name":"publicKey","type":"bytes"}],"stateMutability":"nonpayable","type":"constructor"}]`,
	"SignedToken":    `[{"inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"supply","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"},{"inputs":[{"name":"auditor","type":"address"},{"name":"signature","type":"bytes"}],"name":"signToken","outputs":[],"stateMutability":"nonpayable","type":"function"}]`,
	"AuditCheck":     `[{"inputs":[{"name":"token","type":"address"}],"name":"validateToken","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}]`,
	"TokenValidator": `[{"inputs":[{"name":"threshold","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"},{"inputs":[{"name":"token","type":"address"}],"name":"validateToken","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},{"inputs":[{"name":"token","type":"address"}],"name":"getCodeHash","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},{"inputs":[{"name":"token","type":"address"}],"name":"getCodeHashNoMeta","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}]`,
	"ozTokenA":       `[{"inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"supply","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"}]`,
}

func newStore(t *testing.T, prefixes ...string) *artifact.Disk {
	store, err := artifact.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the store: %v", failed, err)
	}

	for _, prefix := range prefixes {
		for name, abiJSON := range abis {
			a := artifact.Artifact{Contract: name, ABI: []byte(abiJSON), Bytecode: answerInit}
			if err := store.Save(prefix, a); err != nil {
				t.Fatalf("\t%s\tShould be able to save %s/%s: %v", failed, prefix, name, err)
			}
		}
	}

	return store
}

func newSession(t *testing.T) *chainenv.Session {
	key, err := crypto.HexToECDSA(deployerHexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the deployer key: %v", failed, err)
	}

	backend := chainenv.NewSimulated(0, crypto.PubkeyToAddress(key.PublicKey))

	sess, err := chainenv.New(chainenv.Config{Backend: backend, Key: key})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a session: %v", failed, err)
	}
	t.Cleanup(func() { sess.Close() })

	return sess
}

// resetFailer fails the reset after a number of successful ones.
type resetFailer struct {
	bench.Session
	resets int
	okFor  int
}

func (rf *resetFailer) Reset(ctx context.Context) error {
	rf.resets++
	if rf.resets > rf.okFor {
		return errors.New("hardhat_reset: connection refused")
	}
	return nil
}

// constOp records a fixed gas value without touching the chain.
type constOp struct{}

func (constOp) Name() string { return "const" }

func (constOp) Measure(ctx context.Context, sess bench.Session, store artifact.Loader, p bench.Pair) ([]bench.Measurement, error) {
	return []bench.Measurement{{Subject: p.Subject, Operation: "const", GasUsed: 1 << 60}}, nil
}

// =============================================================================

func Test_AuditCheck(t *testing.T) {
	plan := bench.DefaultPlan().Audit
	plan.AuditorPrefix = "embedded2147483647"

	store := newStore(t, "embedded2147483647", "embeddednone", "embedded1")

	t.Log("Given tokens attested by an auditor.")
	{
		t.Logf("\tTest 0:\tWhen running the token by audit check matrix.")
		{
			out := filepath.Join(t.TempDir(), "validation_gas_results.json")

			runner, err := bench.New(bench.Config{
				Session: newSession(t),
				Store:   store,
				Results: bench.NewResults(out),
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct the runner: %v", failed, err)
			}

			op, err := bench.NewAuditCheck(plan, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct the operation: %v", failed, err)
			}

			subjects := []string{"embeddednone", "embedded1"}
			comparisons := []string{"embedded1"}

			ms, err := runner.RunMatrix(context.Background(), subjects, comparisons, op)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to run: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to run.", success)

			if len(ms) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould measure every pair, got %d.", failed, len(ms))
			}
			t.Logf("\t%s\tTest 0:\tShould measure every pair.", success)

			for _, m := range ms {
				if m.Operation != bench.OpValidateToken || m.Comparison != "embedded1" || m.GasUsed <= 21000 || m.RunID == "" {
					t.Fatalf("\t%s\tTest 0:\tShould record the validation gas: %+v", failed, m)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould record the validation gas.", success)

			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould flush the results: %v", failed, err)
			}

			if !strings.Contains(string(data), `"gas_used": "`) {
				t.Fatalf("\t%s\tTest 0:\tShould write gas as decimal strings: %s", failed, data)
			}
			t.Logf("\t%s\tTest 0:\tShould write gas as decimal strings.", success)
		}
	}
}

func Test_Validate(t *testing.T) {
	plan := bench.DefaultPlan().Validate
	store := newStore(t, plan.OptimizedPrefix, plan.UnoptimizedPrefix, "embedded200", "embedded1")

	t.Log("Given tokens checked by the validator.")
	{
		t.Logf("\tTest 0:\tWhen one subject has no artifacts.")
		{
			var skipped int
			runner, err := bench.New(bench.Config{
				Session: newSession(t),
				Store:   store,
				EvHandler: func(v string, args ...any) {
					if strings.Contains(v, "SKIPPED") {
						skipped++
					}
				},
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct the runner: %v", failed, err)
			}

			subjects := []string{"embedded200", "stripped5", "embeddednone", "embedded1"}

			ms, err := runner.RunMatrix(context.Background(), subjects, nil, bench.NewValidate(plan))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould not abort on a missing artifact: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not abort on a missing artifact.", success)

			if skipped != 1 || len(ms) != 9 {
				t.Fatalf("\t%s\tTest 0:\tShould skip one subject and measure three, got %d skipped %d measurements.", failed, skipped, len(ms))
			}
			t.Logf("\t%s\tTest 0:\tShould skip one subject and measure three.", success)

			order := []string{"embeddednone", "embedded1", "embedded200"}
			for i, m := range ms {
				if m.Subject != order[i/3] {
					t.Fatalf("\t%s\tTest 0:\tShould sort with the disabled optimizer first, got %s at %d.", failed, m.Subject, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould sort with the disabled optimizer first.", success)

			if ms[0].Operation != bench.OpDeployToken || ms[0].GasUsed <= 21000 {
				t.Fatalf("\t%s\tTest 0:\tShould record the token deployment cost: %+v", failed, ms[0])
			}
			t.Logf("\t%s\tTest 0:\tShould record the token deployment cost.", success)

			if got := runner.Results().Items(); len(got) != 9 || got[0].Subject != "embeddednone" {
				t.Fatalf("\t%s\tTest 0:\tShould order the stored results.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould order the stored results.", success)
		}
	}
}

func Test_CodeHash(t *testing.T) {
	plan := bench.DefaultPlan().CodeHash
	store := newStore(t, plan.OptimizedPrefix, plan.UnoptimizedPrefix)

	t.Log("Given a token hashed on chain.")
	{
		t.Logf("\tTest 0:\tWhen hashing with both validators.")
		{
			runner, err := bench.New(bench.Config{Session: newSession(t), Store: store})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct the runner: %v", failed, err)
			}

			ms, err := runner.RunMatrix(context.Background(), []string{plan.UnoptimizedPrefix}, nil, bench.NewCodeHash(plan))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to run: %v", failed, err)
			}

			if len(ms) != 4 {
				t.Fatalf("\t%s\tTest 0:\tShould take four measurements, got %d.", failed, len(ms))
			}
			t.Logf("\t%s\tTest 0:\tShould take four measurements.", success)

			seen := make(map[string]bool)
			for _, m := range ms {
				seen[m.Operation+"/"+m.Comparison] = true
			}

			for _, key := range []string{
				bench.OpGetCodeHash + "/" + plan.OptimizedPrefix,
				bench.OpGetCodeHash + "/" + plan.UnoptimizedPrefix,
				bench.OpGetCodeHashNoMeta + "/" + plan.OptimizedPrefix,
				bench.OpGetCodeHashNoMeta + "/" + plan.UnoptimizedPrefix,
			} {
				if !seen[key] {
					t.Fatalf("\t%s\tTest 0:\tShould measure %s.", failed, key)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould measure both methods on both validators.", success)
		}
	}
}

func Test_ResetFailure(t *testing.T) {
	t.Log("Given a chain that stops resetting.")
	{
		t.Logf("\tTest 0:\tWhen the third reset fails.")
		{
			out := filepath.Join(t.TempDir(), "results.json")

			runner, err := bench.New(bench.Config{
				Session: &resetFailer{okFor: 2},
				Store:   newStore(t),
				Results: bench.NewResults(out),
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct the runner: %v", failed, err)
			}

			ms, err := runner.RunMatrix(context.Background(), []string{"a1", "a2", "a3", "a4"}, nil, constOp{})
			if !bench.IsEnvResetError(err) {
				t.Fatalf("\t%s\tTest 0:\tShould abort with a reset error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould abort with a reset error.", success)

			if len(ms) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould return the measurements taken, got %d.", failed, len(ms))
			}
			t.Logf("\t%s\tTest 0:\tShould return the measurements taken.", success)

			stored, err := bench.Load(out)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould flush on abort: %v", failed, err)
			}

			if len(stored) != 2 || stored[0].GasUsed != 1<<60 {
				t.Fatalf("\t%s\tTest 0:\tShould keep gas values above the float range: %+v", failed, stored)
			}
			t.Logf("\t%s\tTest 0:\tShould flush on abort without losing precision.", success)
		}
	}
}

func Test_Pairs(t *testing.T) {
	t.Log("Given subjects and comparisons.")
	{
		t.Logf("\tTest 0:\tWhen building the cross product.")
		{
			pairs := bench.Pairs([]string{"s1", "s2"}, []string{"c1", "c2", "c3"})
			if len(pairs) != 6 || pairs[0] != (bench.Pair{Subject: "s1", Comparison: "c1"}) || pairs[1] != (bench.Pair{Subject: "s2", Comparison: "c1"}) {
				t.Fatalf("\t%s\tTest 0:\tShould iterate subjects per comparison: %v", failed, pairs)
			}
			t.Logf("\t%s\tTest 0:\tShould iterate subjects per comparison.", success)
		}

		t.Logf("\tTest 1:\tWhen there are no comparisons.")
		{
			pairs := bench.Pairs([]string{"s1", "s2"}, nil)
			if len(pairs) != 2 || pairs[1].Comparison != "" {
				t.Fatalf("\t%s\tTest 1:\tShould sweep the subjects alone: %v", failed, pairs)
			}
			t.Logf("\t%s\tTest 1:\tShould sweep the subjects alone.", success)
		}
	}
}

func Test_SortByRuns(t *testing.T) {
	t.Log("Given measurements in sweep order.")
	{
		t.Logf("\tTest 0:\tWhen sorting by optimizer runs.")
		{
			var ms []bench.Measurement
			for _, p := range artifact.Prefixes(artifact.Stripped)[1:] {
				ms = append(ms, bench.Measurement{Subject: p})
			}
			ms = append(ms, bench.Measurement{Subject: "strippednone"})

			bench.SortByRuns(ms)

			if ms[0].Subject != "strippednone" || ms[1].Subject != "stripped0" || ms[len(ms)-1].Subject != "stripped2147483647" {
				t.Fatalf("\t%s\tTest 0:\tShould order none first then ascending runs: %v", failed, ms)
			}
			t.Logf("\t%s\tTest 0:\tShould order none first then ascending runs.", success)
		}
	}
}

func Test_Plan(t *testing.T) {
	t.Log("Given experiment plan files.")
	{
		t.Logf("\tTest 0:\tWhen a plan overrides a few settings.")
		{
			doc := `
validate:
  threshold: 20
  subjects: [strippednone, stripped200]
audit:
  auditor_prefix: stripped2147483647
`
			plan, err := bench.ParsePlan([]byte(doc))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to parse: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to parse.", success)

			if plan.Validate.Threshold != 20 || len(plan.Validate.Subjects) != 2 || plan.Audit.AuditorPrefix != "stripped2147483647" {
				t.Fatalf("\t%s\tTest 0:\tShould apply the overrides: %+v", failed, plan)
			}
			t.Logf("\t%s\tTest 0:\tShould apply the overrides.", success)

			if plan.Validate.Validator != "TokenValidator" || len(plan.CodeHash.Subjects) != 33 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the defaults.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the defaults.", success)
		}

		t.Logf("\tTest 1:\tWhen a plan empties a required list.")
		{
			_, err := bench.ParsePlan([]byte("codehash:\n  subjects: []\n"))
			if !validate.IsFieldErrors(err) {
				t.Fatalf("\t%s\tTest 1:\tShould report the field: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould report the field.", success)
		}

		t.Logf("\tTest 2:\tWhen the token supply is not a number.")
		{
			_, err := bench.ParsePlan([]byte("audit:\n  token:\n    supply: lots\n"))
			if err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject the supply.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject the supply.", success)
		}

		t.Logf("\tTest 3:\tWhen selecting experiments by name.")
		{
			plan := bench.DefaultPlan()

			op, subjects, comparisons, err := plan.Experiment(bench.ExperimentAudit, nil)
			if err != nil || op.Name() != bench.ExperimentAudit || len(subjects) != 33 || len(comparisons) != 33 {
				t.Fatalf("\t%s\tTest 3:\tShould build the audit matrix: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould build the audit matrix.", success)

			op, _, comparisons, err = plan.Experiment(bench.ExperimentValidate, nil)
			if err != nil || op.Name() != bench.ExperimentValidate || comparisons != nil {
				t.Fatalf("\t%s\tTest 3:\tShould build a single prefix sweep: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould build a single prefix sweep.", success)

			if _, _, _, err := plan.Experiment("gasless", nil); err == nil {
				t.Fatalf("\t%s\tTest 3:\tShould reject an unknown experiment.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould reject an unknown experiment.", success)
		}
	}
}
