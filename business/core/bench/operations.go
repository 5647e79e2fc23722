package bench

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/chainenv"
	"github.com/ardanlabs/bytecodelab/foundation/contract/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Set of operation names recorded with measurements.
const (
	OpValidateToken     = "validateToken"
	OpGetCodeHash       = "getCodeHash"
	OpGetCodeHashNoMeta = "getCodeHashNoMeta"
	OpDeployToken       = "deployToken"
)

// AuditCheck measures validating a token attested by an auditor. The subject
// is the token prefix and the comparison is the audit check prefix.
type AuditCheck struct {
	plan AuditPlan
	key  *ecdsa.PrivateKey
}

// NewAuditCheck constructs the operation. A key is generated when none is
// provided.
func NewAuditCheck(plan AuditPlan, key *ecdsa.PrivateKey) (*AuditCheck, error) {
	if key == nil {
		var err error
		if key, err = crypto.GenerateKey(); err != nil {
			return nil, fmt.Errorf("generating auditor key: %w", err)
		}
	}

	return &AuditCheck{plan: plan, key: key}, nil
}

// Name implements the Operation interface.
func (ac *AuditCheck) Name() string {
	return ExperimentAudit
}

// Measure implements the Operation interface.
func (ac *AuditCheck) Measure(ctx context.Context, sess Session, store artifact.Loader, p Pair) ([]Measurement, error) {
	if p.Comparison == "" {
		return nil, errors.New("audit check prefix is required")
	}

	tokenArgs, err := ac.plan.Token.Args()
	if err != nil {
		return nil, err
	}

	publicKey := signature.PublicKeyBytes(&ac.key.PublicKey)

	auditor, _, err := deploy(ctx, sess, store, ac.plan.AuditorPrefix, ac.plan.Auditor, publicKey)
	if err != nil {
		return nil, err
	}

	token, tokenArt, err := deploy(ctx, sess, store, p.Subject, ac.plan.Token.Contract, tokenArgs...)
	if err != nil {
		return nil, err
	}

	check, checkArt, err := deploy(ctx, sess, store, p.Comparison, ac.plan.AuditCheck)
	if err != nil {
		return nil, err
	}

	code, err := sess.Code(ctx, token.Address)
	if err != nil {
		return nil, fmt.Errorf("reading token code: %w", err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("no code at token address %s", token.Address)
	}

	rec, err := signature.Sign(code, ac.key)
	if err != nil {
		return nil, err
	}

	if !signature.Verify(code, rec, publicKey) {
		return nil, errors.New("attestation does not verify against the auditor key")
	}

	data, err := pack(tokenArt, "signToken", auditor.Address, rec.Bytes())
	if err != nil {
		return nil, err
	}

	if _, err := sess.Transact(ctx, token.Address, data); err != nil {
		return nil, fmt.Errorf("signToken: %w", err)
	}

	gas, err := estimate(ctx, sess, checkArt, check.Address, OpValidateToken, token.Address)
	if err != nil {
		return nil, err
	}

	m := Measurement{
		Subject:    p.Subject,
		Comparison: p.Comparison,
		Operation:  OpValidateToken,
		GasUsed:    gas,
	}

	return []Measurement{m}, nil
}

// =============================================================================

// CodeHash measures hashing the code of a token on chain, with and without
// the metadata trailer, using the validator built with and without the
// optimizer.
type CodeHash struct {
	plan ValidatorPlan
}

// NewCodeHash constructs the operation.
func NewCodeHash(plan ValidatorPlan) *CodeHash {
	return &CodeHash{plan: plan}
}

// Name implements the Operation interface.
func (ch *CodeHash) Name() string {
	return ExperimentCodeHash
}

// Measure implements the Operation interface.
func (ch *CodeHash) Measure(ctx context.Context, sess Session, store artifact.Loader, p Pair) ([]Measurement, error) {
	validators, err := deployValidators(ctx, sess, store, ch.plan)
	if err != nil {
		return nil, err
	}

	token, err := deployToken(ctx, sess, store, p.Subject, ch.plan.Token)
	if err != nil {
		return nil, err
	}

	var ms []Measurement
	for _, op := range []string{OpGetCodeHashNoMeta, OpGetCodeHash} {
		for _, v := range validators {
			gas, err := estimate(ctx, sess, v.art, v.address, op, token.Address)
			if err != nil {
				return nil, err
			}

			ms = append(ms, Measurement{
				Subject:    p.Subject,
				Comparison: v.prefix,
				Operation:  op,
				GasUsed:    gas,
			})
		}
	}

	return ms, nil
}

// =============================================================================

// Validate measures validating a token with the validator built with and
// without the optimizer, and records the token deployment cost.
type Validate struct {
	plan ValidatorPlan
}

// NewValidate constructs the operation.
func NewValidate(plan ValidatorPlan) *Validate {
	return &Validate{plan: plan}
}

// Name implements the Operation interface.
func (v *Validate) Name() string {
	return ExperimentValidate
}

// Order implements the Orderer interface.
func (v *Validate) Order(ms []Measurement) {
	SortByRuns(ms)
}

// Measure implements the Operation interface.
func (v *Validate) Measure(ctx context.Context, sess Session, store artifact.Loader, p Pair) ([]Measurement, error) {
	validators, err := deployValidators(ctx, sess, store, v.plan)
	if err != nil {
		return nil, err
	}

	token, err := deployToken(ctx, sess, store, p.Subject, v.plan.Token)
	if err != nil {
		return nil, err
	}

	ms := []Measurement{
		{
			Subject:   p.Subject,
			Operation: OpDeployToken,
			GasUsed:   token.GasUsed,
		},
	}

	for _, val := range validators {
		gas, err := estimate(ctx, sess, val.art, val.address, OpValidateToken, token.Address)
		if err != nil {
			return nil, err
		}

		ms = append(ms, Measurement{
			Subject:    p.Subject,
			Comparison: val.prefix,
			Operation:  OpValidateToken,
			GasUsed:    gas,
		})
	}

	return ms, nil
}

// =============================================================================

type deployed struct {
	prefix  string
	address common.Address
	art     artifact.Artifact
}

// deployValidators deploys the optimized and unoptimized validator.
func deployValidators(ctx context.Context, sess Session, store artifact.Loader, plan ValidatorPlan) ([]deployed, error) {
	threshold := new(big.Int).SetUint64(plan.Threshold)

	var validators []deployed
	for _, prefix := range []string{plan.OptimizedPrefix, plan.UnoptimizedPrefix} {
		receipt, art, err := deploy(ctx, sess, store, prefix, plan.Validator, threshold)
		if err != nil {
			return nil, err
		}

		validators = append(validators, deployed{prefix: prefix, address: receipt.Address, art: art})
	}

	return validators, nil
}

// deployToken deploys the token built under the prefix.
func deployToken(ctx context.Context, sess Session, store artifact.Loader, prefix string, token Token) (chainenv.Receipt, error) {
	args, err := token.Args()
	if err != nil {
		return chainenv.Receipt{}, err
	}

	receipt, _, err := deploy(ctx, sess, store, prefix, token.Contract, args...)
	return receipt, err
}

// deploy loads an artifact and deploys it with the constructor arguments.
func deploy(ctx context.Context, sess Session, store artifact.Loader, prefix string, contract string, args ...any) (chainenv.Receipt, artifact.Artifact, error) {
	art, err := store.Load(prefix, contract)
	if err != nil {
		return chainenv.Receipt{}, artifact.Artifact{}, err
	}

	code, err := art.DeployCode(args...)
	if err != nil {
		return chainenv.Receipt{}, artifact.Artifact{}, err
	}

	receipt, err := sess.Deploy(ctx, code)
	if err != nil {
		return chainenv.Receipt{}, artifact.Artifact{}, fmt.Errorf("%s/%s: %w", prefix, contract, err)
	}

	return receipt, art, nil
}

// estimate returns the gas of calling the method on the deployed contract.
func estimate(ctx context.Context, sess Session, art artifact.Artifact, to common.Address, method string, args ...any) (uint64, error) {
	data, err := pack(art, method, args...)
	if err != nil {
		return 0, err
	}

	gas, err := sess.EstimateGas(ctx, to, data)
	if err != nil {
		return 0, fmt.Errorf("estimating %s: %w", method, err)
	}

	return gas, nil
}

// pack encodes a call to the method using the artifact ABI.
func pack(art artifact.Artifact, method string, args ...any) ([]byte, error) {
	parsed, err := art.ParseABI()
	if err != nil {
		return nil, fmt.Errorf("%s: parsing abi: %w", art.Contract, err)
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: packing %s: %w", art.Contract, method, err)
	}

	return data, nil
}
