package docker_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type composeFile struct {
	Services map[string]service `yaml:"services"`
}

type service struct {
	Image       string         `yaml:"image"`
	Build       *build         `yaml:"build"`
	Ports       []string       `yaml:"ports"`
	Environment []string       `yaml:"environment"`
	DependsOn   map[string]any `yaml:"depends_on"`
	Healthcheck *healthcheck   `yaml:"healthcheck"`
	Restart     string         `yaml:"restart"`
}

type build struct {
	Context string `yaml:"context"`
}

type healthcheck struct {
	Test []string `yaml:"test"`
}

func loadCompose(t *testing.T) composeFile {
	t.Helper()
	_, filename, _, _ := runtime.Caller(0)
	// From internal/docker/ go up to the project root.
	path := filepath.Join(filepath.Dir(filename), "..", "..", "deploy", "docker-compose.yml")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read compose file: %v", err)
	}
	var cf composeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		t.Fatalf("failed to parse compose file: %v", err)
	}
	return cf
}

func TestComposeHasRedisAndRelay(t *testing.T) {
	cf := loadCompose(t)

	redis, ok := cf.Services["redis"]
	if !ok {
		t.Fatal("expected a redis service")
	}
	if !strings.HasPrefix(redis.Image, "redis:") {
		t.Errorf("expected a redis image, got %q", redis.Image)
	}
	if redis.Healthcheck == nil || len(redis.Healthcheck.Test) == 0 {
		t.Error("expected a redis healthcheck")
	}

	relay, ok := cf.Services["relay"]
	if !ok {
		t.Fatal("expected a relay service")
	}
	if relay.Build == nil {
		t.Error("expected relay to build from source")
	}
	if _, ok := relay.DependsOn["redis"]; !ok {
		t.Error("expected relay to depend on redis")
	}
}

func TestComposeRelayPointsAtRedis(t *testing.T) {
	cf := loadCompose(t)

	relay := cf.Services["relay"]
	found := false
	for _, env := range relay.Environment {
		if env == "REDIS_ADDR=redis:6379" {
			found = true
		}
	}
	if !found {
		t.Error("expected relay REDIS_ADDR to target the redis service")
	}
}
