// Package policy decides whether a gated action needs human sign-off and how
// many independent approvals it takes. The base decision is a pure lookup on
// the action's risk level; optional rules evaluated against the full action
// can tighten it per environment, target or parameter.
package policy

import (
	"github.com/ghantakiran/ShieldOps-sub011/types"
)

// Rule tightens the base risk decision for actions matching Expression.
// The expression is evaluated against the action's fields (action_type,
// environment, target, risk_level plus every parameter) and must yield a
// boolean. Rules never loosen the base decision.
type Rule struct {
	Name              string `json:"name"`
	Expression        string `json:"expression"`
	RequireApproval   bool   `json:"require_approval"`
	RequiredApprovals int    `json:"required_approvals,omitempty"`
}

// RiskPolicy maps risk levels to approval requirements.
type RiskPolicy struct {
	rules     []Rule
	evaluator Evaluator
}

// Option configures a RiskPolicy.
type Option func(*RiskPolicy)

// WithRules adds override rules evaluated by EvaluateAction.
func WithRules(rules ...Rule) Option {
	return func(p *RiskPolicy) {
		p.rules = append(p.rules, rules...)
	}
}

// WithEvaluator sets a custom expression evaluator.
func WithEvaluator(evaluator Evaluator) Option {
	return func(p *RiskPolicy) {
		if evaluator != nil {
			p.evaluator = evaluator
		}
	}
}

// NewRiskPolicy creates a RiskPolicy with the default expr evaluator.
func NewRiskPolicy(options ...Option) *RiskPolicy {
	p := &RiskPolicy{evaluator: NewExprEvaluator()}
	for _, option := range options {
		option(p)
	}
	return p
}

// RequiresApproval reports whether actions at the given risk level must be
// gated behind human sign-off.
func (p *RiskPolicy) RequiresApproval(level types.RiskLevel) bool {
	return level == types.RiskHigh || level == types.RiskCritical
}

// RequiredApprovals returns how many independent approvals the given risk
// level takes. Levels that need no approval return 0.
func (p *RiskPolicy) RequiredApprovals(level types.RiskLevel) int {
	switch level {
	case types.RiskHigh:
		return 1
	case types.RiskCritical:
		return 2
	default:
		return 0
	}
}

// EvaluateAction combines the base risk lookup with any matching rule and
// returns whether approval is required and how many approvals it takes.
// Rules that fail to compile or evaluate are skipped so the policy stays
// total.
func (p *RiskPolicy) EvaluateAction(action types.Action) (bool, int) {
	required := p.RequiresApproval(action.RiskLevel)
	approvals := p.RequiredApprovals(action.RiskLevel)

	if len(p.rules) == 0 {
		return required, approvals
	}

	env := actionEnv(action)
	for _, rule := range p.rules {
		matched, err := p.evaluator.Evaluate(rule.Expression, env)
		if err != nil || !matched {
			continue
		}
		if rule.RequireApproval {
			required = true
			if approvals == 0 {
				approvals = 1
			}
		}
		if rule.RequiredApprovals > approvals {
			approvals = rule.RequiredApprovals
		}
	}

	if required && approvals == 0 {
		approvals = 1
	}
	return required, approvals
}

// actionEnv flattens an action into the evaluation environment. Parameters
// are merged in last so rules can match on them directly.
func actionEnv(action types.Action) map[string]interface{} {
	env := map[string]interface{}{
		"action_id":   action.ID,
		"action_type": action.Type,
		"target":      action.Target,
		"environment": action.Environment,
		"risk_level":  string(action.RiskLevel),
	}
	for k, v := range action.Parameters {
		env[k] = v
	}
	return env
}
