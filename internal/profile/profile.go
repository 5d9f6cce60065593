package profile

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Agent service names consumed by the pipeline.
const (
	AgentGuardrails = "guardrails"
	AgentPlanner    = "planner"
	AgentProfessor  = "professor"
	AgentEvaluator  = "schema_creator"
	AgentNatural    = "natural_agent"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// DSN points to where tutorflow stores session records
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Agent configuration
	AgentBaseURL        string            // TUTORFLOW_AGENT_BASE_URL
	AgentEndpoints      map[string]string // per-agent overrides, TUTORFLOW_AGENT_<NAME>_URL
	AgentConnectTimeout time.Duration     // TUTORFLOW_AGENT_CONNECT_TIMEOUT
	AgentReadTimeout    time.Duration     // TUTORFLOW_AGENT_READ_TIMEOUT
	AgentMaxAttempts    int               // TUTORFLOW_AGENT_MAX_ATTEMPTS

	// Session log configuration
	RedisAddr     string        // TUTORFLOW_REDIS_ADDR (empty = in-memory log)
	RedisPassword string        // TUTORFLOW_REDIS_PASSWORD
	RedisDB       int           // TUTORFLOW_REDIS_DB
	SessionWindow int           // TUTORFLOW_SESSION_WINDOW
	SessionTTL    time.Duration // TUTORFLOW_SESSION_TTL

	// LLM fallback for the natural-conversation workflow when no
	// natural agent endpoint is configured.
	LLMAPIKey  string // TUTORFLOW_LLM_API_KEY
	LLMBaseURL string // TUTORFLOW_LLM_BASE_URL
	LLMModel   string // TUTORFLOW_LLM_MODEL
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMFallbackEnabled reports whether the direct LLM provider can back
// the natural-conversation workflow.
func (p *Profile) IsLLMFallbackEnabled() bool {
	return p.LLMAPIKey != ""
}

// agentPathTemplates are the default endpoint paths under AgentBaseURL.
var agentPathTemplates = map[string]string{
	AgentGuardrails: "/agents/guardrails/ask",
	AgentPlanner:    "/agents/planner/ask",
	AgentProfessor:  "/agents/professor/ask",
	AgentEvaluator:  "/agents/schema_creator/ask",
	AgentNatural:    "/agents/natural/ask",
}

// agentEnvOverrides are the per-agent endpoint override variables.
var agentEnvOverrides = map[string]string{
	AgentGuardrails: "TUTORFLOW_AGENT_GUARDRAILS_URL",
	AgentPlanner:    "TUTORFLOW_AGENT_PLANNER_URL",
	AgentProfessor:  "TUTORFLOW_AGENT_PROFESSOR_URL",
	AgentEvaluator:  "TUTORFLOW_AGENT_EVALUATOR_URL",
	AgentNatural:    "TUTORFLOW_AGENT_NATURAL_URL",
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from TUTORFLOW_* environment variables.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("TUTORFLOW_MODE", p.Mode)
	p.Addr = getEnvOrDefault("TUTORFLOW_ADDR", p.Addr)
	p.Port = getIntEnv("TUTORFLOW_PORT", p.Port)
	p.DSN = getEnvOrDefault("TUTORFLOW_DSN", p.DSN)
	p.Driver = getEnvOrDefault("TUTORFLOW_DRIVER", p.Driver)

	p.AgentBaseURL = getEnvOrDefault("TUTORFLOW_AGENT_BASE_URL", p.AgentBaseURL)
	p.AgentConnectTimeout = getDurationEnv("TUTORFLOW_AGENT_CONNECT_TIMEOUT", p.AgentConnectTimeout)
	p.AgentReadTimeout = getDurationEnv("TUTORFLOW_AGENT_READ_TIMEOUT", p.AgentReadTimeout)
	p.AgentMaxAttempts = getIntEnv("TUTORFLOW_AGENT_MAX_ATTEMPTS", p.AgentMaxAttempts)

	p.RedisAddr = getEnvOrDefault("TUTORFLOW_REDIS_ADDR", p.RedisAddr)
	p.RedisPassword = getEnvOrDefault("TUTORFLOW_REDIS_PASSWORD", p.RedisPassword)
	p.RedisDB = getIntEnv("TUTORFLOW_REDIS_DB", p.RedisDB)
	p.SessionWindow = getIntEnv("TUTORFLOW_SESSION_WINDOW", p.SessionWindow)
	p.SessionTTL = getDurationEnv("TUTORFLOW_SESSION_TTL", p.SessionTTL)

	p.LLMAPIKey = getEnvOrDefault("TUTORFLOW_LLM_API_KEY", p.LLMAPIKey)
	p.LLMBaseURL = getEnvOrDefault("TUTORFLOW_LLM_BASE_URL", p.LLMBaseURL)
	p.LLMModel = getEnvOrDefault("TUTORFLOW_LLM_MODEL", p.LLMModel)

	p.AgentEndpoints = p.resolveAgentEndpoints()
}

// resolveAgentEndpoints builds the service-name → URL table from the
// base URL plus per-agent overrides.
func (p *Profile) resolveAgentEndpoints() map[string]string {
	endpoints := make(map[string]string, len(agentPathTemplates))
	for name, path := range agentPathTemplates {
		if p.AgentBaseURL != "" {
			endpoints[name] = p.AgentBaseURL + path
		}
		if url := os.Getenv(agentEnvOverrides[name]); url != "" {
			endpoints[name] = url
		}
	}
	return endpoints
}

// Validate normalizes the profile and rejects unusable configurations.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Port == 0 {
		p.Port = 8230
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = "tutorflow_" + p.Mode + ".db"
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires TUTORFLOW_DSN")
	}
	if len(p.AgentEndpoints) == 0 {
		return errors.New("no agent endpoints configured; set TUTORFLOW_AGENT_BASE_URL")
	}
	if _, ok := p.AgentEndpoints[AgentGuardrails]; !ok {
		return errors.Errorf("missing endpoint for required agent %q", AgentGuardrails)
	}
	return nil
}
