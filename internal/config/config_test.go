package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`
input: build/libs/game.jar
output: build/libs/game-widened.jar
manifests: [mods]
rules: [extra.accesswidener]
workers: 3
strict: true
logging:
  level: debug
  format: json
`), 0o644))
	t.Setenv("CLASS_WIDENER_WORKERS", "8")
	t.Setenv("CLASS_WIDENER_MANIFEST_NAME", "fabric.mod.json")
	t.Setenv("CLASS_WIDENER_FOLLOW_SYMLINKS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "build/libs/game.jar", cfg.Input)
	assert.Equal(t, []string{"mods"}, cfg.Manifests)
	assert.Equal(t, []string{"extra.accesswidener"}, cfg.Rules)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "fabric.mod.json", cfg.ManifestName)
	assert.True(t, cfg.Strict)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json"}, cfg.Logging)
	assert.Equal(t, []string{".git", ".gradle", "build"}, cfg.Exclude)
	assert.False(t, cfg.FollowSymlinks)
	require.NoError(t, cfg.Validate())
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("workers: [oops"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "config yaml")
}

func TestDefaultsFollowSymlinks(t *testing.T) {
	assert.True(t, Defaults().FollowSymlinks)
}

func TestInvalidEnvIntIsIgnored(t *testing.T) {
	t.Setenv("CLASS_WIDENER_WORKERS", "many")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Workers)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Defaults()
		c.Input, c.Output = "in.jar", "out.jar"
		c.Rules = []string{"a.accesswidener"}
		return c
	}
	cases := map[string]func(*Config){
		"no sources":       func(c *Config) { c.Rules = nil },
		"no input":         func(c *Config) { c.Input = "" },
		"no output":        func(c *Config) { c.Output = "" },
		"negative workers": func(c *Config) { c.Workers = -1 },
		"bad level":        func(c *Config) { c.Logging.Level = "loud" },
		"bad format":       func(c *Config) { c.Logging.Format = "xml" },
		"nested name":      func(c *Config) { c.ManifestName = "META-INF/mod.json" },
		"bad exclude":      func(c *Config) { c.Exclude = []string{"build["} },
	}
	ok := base()
	require.NoError(t, ok.Validate())
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestInPlace(t *testing.T) {
	c := Config{Input: "a/../game.jar", Output: "game.jar"}
	assert.True(t, c.InPlace())
	c.Output = "out.jar"
	assert.False(t, c.InPlace())
}
