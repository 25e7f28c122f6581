package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp moves the test into an empty directory so a stray .env in the
// package tree is never read.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "CHATGPT_API_KEY", "OPENAI_API_KEY", "LLM_MODEL", "LLM_TIMEOUT", "NEO4J_URL", "NATS_URL", "WP_PUBLISH_API_KEY", "DEV"} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Port != "8080" || c.LLM.Model != "gpt-4" || c.LLM.MaxTokens != 2000 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.LLM.Timeout != 30*time.Second || c.LLM.Temperature != 0.3 {
		t.Fatalf("unexpected llm defaults: %+v", c.LLM)
	}
	if c.Verify.Schedule != "@every 6h" {
		t.Fatalf("unexpected schedule %q", c.Verify.Schedule)
	}
	if c.Neo4j.URL != "" {
		t.Fatal("store should default to memory")
	}
}

func TestMissingFileIsDefaults(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)
	if _, err := Load("does-not-exist.yaml"); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
}

func TestYAMLFile(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t)
	path := filepath.Join(dir, "geoaudit.yaml")
	body := `
server:
  port: "9090"
llm:
  model: gpt-4o
  timeout: 45s
verify:
  schedule: "0 3 * * *"
  concurrency: 2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Port != "9090" || c.LLM.Model != "gpt-4o" || c.LLM.Timeout != 45*time.Second {
		t.Fatalf("yaml not applied: %+v", c)
	}
	if c.LLM.MaxTokens != 2000 {
		t.Fatal("unset fields should keep defaults")
	}
	if c.Verify.Schedule != "0 3 * * *" || c.Verify.Concurrency != 2 {
		t.Fatalf("unexpected verify: %+v", c.Verify)
	}
}

func TestBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t)
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte("server: [1, 2"), 0o600)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config: parse") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t)
	path := filepath.Join(dir, "geoaudit.yaml")
	os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600)

	t.Setenv("PORT", "7000")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("NEO4J_URL", "neo4j://db:7687")
	t.Setenv("DEV", "true")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Port != "7000" || c.LLM.APIKey != "sk-openai" || c.LLM.Timeout != 5*time.Second {
		t.Fatalf("env not applied: %+v", c)
	}
	if c.Neo4j.URL != "neo4j://db:7687" || !c.Server.Dev {
		t.Fatalf("env not applied: %+v", c)
	}
}

func TestChatGPTKeyWins(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("CHATGPT_API_KEY", "sk-chatgpt")
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.LLM.APIKey != "sk-chatgpt" {
		t.Fatalf("expected CHATGPT_API_KEY, got %q", c.LLM.APIKey)
	}
}

func TestDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t)
	os.Unsetenv("WP_PUBLISH_API_KEY")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WP_PUBLISH_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("WP_PUBLISH_API_KEY") })

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.WordPress.PublishAPIKey != "from-dotenv" {
		t.Fatalf("expected .env value, got %q", c.WordPress.PublishAPIKey)
	}
}

func TestBadDuration(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)
	t.Setenv("LLM_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Server.Port = ""
	c.LLM.Timeout = 0
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "llm.timeout") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestValidateTemperature(t *testing.T) {
	for _, temp := range []float64{0, -0.5, 2.5} {
		c := Default()
		c.LLM.Temperature = temp
		if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "llm.temperature") {
			t.Errorf("temperature %v: expected error, got %v", temp, err)
		}
	}
	c := Default()
	c.LLM.Temperature = 2
	if err := c.Validate(); err != nil {
		t.Fatalf("temperature 2 should be accepted: %v", err)
	}
}
