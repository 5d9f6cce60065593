package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaultsAndOverrides(t *testing.T) {
	t.Setenv("TUTORFLOW_MODE", "prod")
	t.Setenv("TUTORFLOW_PORT", "9000")
	t.Setenv("TUTORFLOW_AGENT_BASE_URL", "http://agents.local:9200")
	t.Setenv("TUTORFLOW_AGENT_EVALUATOR_URL", "http://other.local/eval")
	t.Setenv("TUTORFLOW_SESSION_TTL", "45m")

	p := &Profile{}
	p.FromEnv()

	require.Equal(t, "prod", p.Mode)
	require.Equal(t, 9000, p.Port)
	require.Equal(t, 45*time.Minute, p.SessionTTL)
	require.Equal(t, "http://agents.local:9200/agents/guardrails/ask", p.AgentEndpoints[AgentGuardrails])
	require.Equal(t, "http://agents.local:9200/agents/planner/ask", p.AgentEndpoints[AgentPlanner])
	require.Equal(t, "http://other.local/eval", p.AgentEndpoints[AgentEvaluator])
}

func TestValidate(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		p := &Profile{AgentEndpoints: map[string]string{AgentGuardrails: "http://x/ask"}}
		require.NoError(t, p.Validate())
		require.Equal(t, "dev", p.Mode)
		require.Equal(t, "sqlite", p.Driver)
		require.Equal(t, "tutorflow_dev.db", p.DSN)
		require.Equal(t, 8230, p.Port)
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		p := &Profile{
			Driver:         "postgres",
			AgentEndpoints: map[string]string{AgentGuardrails: "http://x/ask"},
		}
		require.Error(t, p.Validate())
	})

	t.Run("guardrails endpoint required", func(t *testing.T) {
		p := &Profile{AgentEndpoints: map[string]string{AgentPlanner: "http://x/ask"}}
		require.Error(t, p.Validate())
	})

	t.Run("no endpoints at all", func(t *testing.T) {
		p := &Profile{}
		require.Error(t, p.Validate())
	})
}

func TestIsLLMFallbackEnabled(t *testing.T) {
	p := &Profile{}
	require.False(t, p.IsLLMFallbackEnabled())
	p.LLMAPIKey = "sk-test"
	require.True(t, p.IsLLMFallbackEnabled())
}
