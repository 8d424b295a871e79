package infraware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/slok/infraware/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "infraware"
	}

	// go test changes the CWD to the test package directory, relative paths
	// would be resolved against it.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("INFRAWARE_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("infraware binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "INFRAWARE_INTEGRATION"
		envBinary     = "INFRAWARE_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary: os.Getenv(envBinary),
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// Env is an isolated infraware data directory.
type Env struct {
	Config  Config
	DataDir string
}

// NewEnv returns a new isolated environment.
func NewEnv(t *testing.T, config Config) Env {
	t.Helper()
	return Env{Config: config, DataDir: t.TempDir()}
}

func (e Env) globalArgs() []string {
	return []string{
		"--db-path", filepath.Join(e.DataDir, "infraware.db"),
		"--artifacts-dir", filepath.Join(e.DataDir, "artifacts"),
	}
}

// Run runs a CLI command on the environment.
func (e Env) Run(ctx context.Context, args ...string) (stdout, stderr []byte, err error) {
	return testutils.RunInfrawareArgs(ctx, nil, e.Config.Binary, append(e.globalArgs(), args...), true)
}

// RunJSON runs a CLI command with JSON output and decodes it.
func (e Env) RunJSON(ctx context.Context, v any, args ...string) error {
	stdout, stderr, err := e.Run(ctx, append(args, "--format", "json")...)
	if err != nil {
		return fmt.Errorf("command failed: %w: %s", err, stderr)
	}
	return json.Unmarshal(stdout, v)
}

// Serve starts the HTTP API of the environment and waits until it's healthy.
// It returns the API base URL.
func (e Env) Serve(ctx context.Context, t *testing.T, args ...string) string {
	t.Helper()

	addr := freeAddress(t)
	serveArgs := append(e.globalArgs(), "serve", "--listen", addr)
	serveArgs = append(serveArgs, args...)

	stop, err := testutils.StartInfraware(ctx, nil, e.Config.Binary, serveArgs, false)
	if err != nil {
		t.Fatalf("could not start server: %s", err)
	}
	t.Cleanup(func() {
		if stderr, err := stop(); err != nil {
			t.Logf("server stopped with error: %s\n%s", err, stderr)
		}
	})

	baseURL := "http://" + addr
	healthy := func() error {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unhealthy: %d", resp.StatusCode)
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 100), ctx)
	if err := backoff.Retry(healthy, b); err != nil {
		t.Fatalf("server not healthy: %s", err)
	}

	return baseURL
}

func freeAddress(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not get a free port: %s", err)
	}
	defer l.Close()

	return l.Addr().String()
}
