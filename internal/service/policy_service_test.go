package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/gateway/internal/domain/policy"
)

func TestPolicyServiceDenyPatternTakesPrecedenceOverAllow(t *testing.T) {
	svc, err := NewPolicyService(PolicyConfig{
		AllowPatterns: []string{"*"},
		DenyPatterns:  []string{"admin.*"},
	})
	require.NoError(t, err)

	assert.False(t, svc.IsAllowed("admin.delete_user"))
	assert.True(t, svc.IsAllowed("search.query"))
}

func TestPolicyServiceAllowSetRejectsUnmatched(t *testing.T) {
	svc, err := NewPolicyService(PolicyConfig{
		AllowPatterns: []string{"search.*"},
	})
	require.NoError(t, err)

	assert.True(t, svc.IsAllowed("search.query"))
	assert.False(t, svc.IsAllowed("admin.delete_user"))
}

func TestPolicyServiceDenyByDefaultWithEmptyAllowSet(t *testing.T) {
	svc, err := NewPolicyService(PolicyConfig{DenyByDefault: true})
	require.NoError(t, err)

	assert.False(t, svc.IsAllowed("anything.tool"))
}

func TestPolicyServiceAllowsByDefaultWhenNoRulesConfigured(t *testing.T) {
	svc, err := NewPolicyService(PolicyConfig{})
	require.NoError(t, err)

	assert.True(t, svc.IsAllowed("anything.tool"))
	assert.False(t, svc.IsPolicyActive())
}

func TestPolicyServiceConditionalRuleDeniesOnMatchedCondition(t *testing.T) {
	svc, err := NewPolicyService(PolicyConfig{
		ConditionalRules: []policy.ConditionalRule{
			{
				ID:        "deny-large-writes",
				Pattern:   "write.*",
				Condition: `"size" in arguments && arguments["size"] > 1000`,
				Action:    policy.ActionDeny,
			},
		},
	})
	require.NoError(t, err)

	denied := svc.Evaluate(context.Background(), policy.EvaluationContext{
		ExternalToolName: "write.file",
		Arguments:        map[string]interface{}{"size": 5000.0},
	})
	assert.False(t, denied.Allowed)
	assert.Contains(t, denied.Reason, "deny-large-writes")

	allowed := svc.Evaluate(context.Background(), policy.EvaluationContext{
		ExternalToolName: "write.file",
		Arguments:        map[string]interface{}{"size": 10.0},
	})
	assert.True(t, allowed.Allowed)
}

func TestPolicyServiceConditionalRuleWithoutConditionActsAsPatternOnlyDeny(t *testing.T) {
	svc, err := NewPolicyService(PolicyConfig{
		ConditionalRules: []policy.ConditionalRule{
			{ID: "block-reboot", Pattern: "system.reboot", Action: policy.ActionDeny},
		},
	})
	require.NoError(t, err)

	assert.False(t, svc.IsAllowed("system.reboot"))
	assert.True(t, svc.IsAllowed("system.status"))
}

func TestPolicyServiceReloadReplacesActiveRules(t *testing.T) {
	svc, err := NewPolicyService(PolicyConfig{DenyPatterns: []string{"admin.*"}})
	require.NoError(t, err)
	assert.False(t, svc.IsAllowed("admin.delete_user"))

	require.NoError(t, svc.Reload(PolicyConfig{}))
	assert.True(t, svc.IsAllowed("admin.delete_user"))
}

func TestPolicyServiceReloadRejectsInvalidPatternAndKeepsPriorRules(t *testing.T) {
	svc, err := NewPolicyService(PolicyConfig{DenyPatterns: []string{"admin.*"}})
	require.NoError(t, err)

	err = svc.Reload(PolicyConfig{DenyPatterns: []string{"["}})
	assert.Error(t, err)
	assert.False(t, svc.IsAllowed("admin.delete_user"))
}

func TestPolicyServiceFilterAllowedPreservesOrder(t *testing.T) {
	svc, err := NewPolicyService(PolicyConfig{DenyPatterns: []string{"admin.*"}})
	require.NoError(t, err)

	out := svc.FilterAllowed([]string{"search.query", "admin.delete_user", "reports.run"})
	assert.Equal(t, []string{"search.query", "reports.run"}, out)
}
