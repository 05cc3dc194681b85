package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"voice-trial-agent/internal/policy/domain"
)

const quotaQuery = "data.voicetrial.quota"

// DefaultRegoPolicy mirrors NativeEvaluator. A custom module must define the same package
// and produce a reason string ("" when allowed).
const DefaultRegoPolicy = `package voicetrial.quota

default reason := ""

default blocked := false

at_interaction_limit if input.session.interaction_count >= input.policy.interaction_limit

expired if input.now_ms - input.session.started_at_ms > input.policy.window_ms

at_token_limit if input.session.estimated_tokens >= input.policy.token_limit

reason := "interaction_limit" if at_interaction_limit

reason := "revoked" if {
	input.revoked
	not at_interaction_limit
}

reason := "session_expired" if {
	not input.revoked
	not at_interaction_limit
	expired
}

reason := "token_limit" if {
	not input.revoked
	not at_interaction_limit
	not expired
	at_token_limit
}

blocked if reason != ""
`

// OPAEvaluator evaluates the quota rules with an in-process OPA Rego engine. Evaluation
// failures are logged and fall back to the native verdict.
type OPAEvaluator struct {
	compiler *ast.Compiler
}

// NewOPAEvaluator compiles module. Empty module selects DefaultRegoPolicy.
func NewOPAEvaluator(module string) (*OPAEvaluator, error) {
	if module == "" {
		module = DefaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"quota.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile quota policy: %w", err)
	}
	return &OPAEvaluator{compiler: compiler}, nil
}

// LoadOPAEvaluator compiles the Rego module at path.
func LoadOPAEvaluator(path string) (*OPAEvaluator, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quota policy: %w", err)
	}
	return NewOPAEvaluator(string(b))
}

// HealthCheck verifies that the compiled policy evaluates on a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.eval(ctx, Input{Policy: domain.DefaultPolicy()})
	return err
}

// Evaluate returns the Rego verdict, or the native verdict when Rego fails.
func (e *OPAEvaluator) Evaluate(ctx context.Context, in Input) (domain.Verdict, error) {
	v, err := e.eval(ctx, in)
	if err != nil {
		log.Printf("policy: rego evaluation failed: %v, using built-in rules", err)
		return nativeVerdict(in), nil
	}
	return v, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, in Input) (domain.Verdict, error) {
	q := rego.New(
		rego.Query(quotaQuery+".reason"),
		rego.Compiler(e.compiler),
		rego.Input(buildInput(in)),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return domain.Verdict{}, fmt.Errorf("policy query returned no result")
	}
	s, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return domain.Verdict{}, fmt.Errorf("reason is %T, want string", rs[0].Expressions[0].Value)
	}
	reason := domain.Reason(s)
	if !reason.Valid() {
		return domain.Verdict{}, fmt.Errorf("unknown reason %q", s)
	}
	if reason == domain.ReasonNone {
		return domain.Allow, nil
	}
	return domain.Block(reason), nil
}

func buildInput(in Input) map[string]interface{} {
	out := map[string]interface{}{
		"policy": map[string]interface{}{
			"interaction_limit": in.Policy.InteractionLimit,
			"window_ms":         in.Policy.Window.Milliseconds(),
			"token_limit":       in.Policy.TokenLimit,
		},
		"revoked": in.Revoked,
		"now_ms":  in.Now.UnixMilli(),
	}
	if s := in.Session; s != nil {
		out["session"] = map[string]interface{}{
			"identity_email":    s.IdentityEmail,
			"started_at_ms":     s.StartedAt.UnixMilli(),
			"interaction_count": s.InteractionCount,
			"estimated_tokens":  s.EstimatedTokens,
		}
	}
	return out
}
