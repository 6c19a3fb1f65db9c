package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
    wd, err := os.Getwd()
    require.NoError(t, err)
    require.NoError(t, os.Chdir(t.TempDir()))
    t.Cleanup(func() { _ = os.Chdir(wd) })
    cfg, err := Load("")
    require.NoError(t, err)
    assert.Equal(t, 4, cfg.Pool.MaxNodeCount)
    assert.Equal(t, 15*time.Second, cfg.Pool.HandshakeTimeout())
    assert.Equal(t, "pipe", cfg.Transport.Kind)
    assert.Equal(t, "badger", cfg.Catalog.Kind)
    assert.Equal(t, filepath.Join("./data", "catalog"), cfg.Catalog.Path)
    assert.True(t, cfg.Pool.NodeReuse)
    assert.Equal(t, filepath.Join("./data", "endpoints"), cfg.Launcher.EndpointDir)
}

func TestLoadFileAndEnv(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "buildnode.yaml")
    require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/bn
pool:
  max_node_count: 12
  node_reuse: false
  idle_ttl_ms: 2000
transport:
  kind: TCP
catalog:
  kind: badger
launcher:
  extra_args: --verbose "a b"
`), 0o644))
    t.Setenv("BUILDNODE_POOL_LOW_PRIORITY", "true")
    t.Setenv("BUILDNODE_LOG_LEVEL", "debug")

    cfg, err := Load(path)
    require.NoError(t, err)
    assert.Equal(t, 12, cfg.Pool.MaxNodeCount)
    assert.False(t, cfg.Pool.NodeReuse)
    assert.True(t, cfg.Pool.LowPriority)
    assert.Equal(t, 2*time.Second, cfg.Pool.IdleTTL())
    assert.Equal(t, "tcp", cfg.Transport.Kind)
    assert.Equal(t, filepath.Join("/var/lib/bn", "catalog"), cfg.Catalog.Path)
    assert.Equal(t, `--verbose "a b"`, cfg.Launcher.ExtraArgs)
    assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigEnvPath(t *testing.T) {
    path := filepath.Join(t.TempDir(), "custom.yaml")
    require.NoError(t, os.WriteFile(path, []byte("app_name: from-env-path\n"), 0o644))
    t.Setenv("BUILDNODE_CONFIG", path)
    cfg, err := Load("")
    require.NoError(t, err)
    assert.Equal(t, "from-env-path", cfg.AppName)
}

func TestNodeReuseNeedsPersistentCatalog(t *testing.T) {
    for kind, reuse := range map[string]bool{"badger": true, "memory": false, "none": false, "": true} {
        t.Run("kind="+kind, func(t *testing.T) {
            path := filepath.Join(t.TempDir(), "c.yaml")
            body := "pool:\n  node_reuse: true\ncatalog:\n  kind: \"" + kind + "\"\n"
            require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
            cfg, err := Load(path)
            require.NoError(t, err)
            assert.Equal(t, reuse, cfg.Pool.NodeReuse)
        })
    }
}

func TestValidateRejects(t *testing.T) {
    for name, body := range map[string]string{
        "level":     "log:\n  level: loud\n",
        "capacity":  "pool:\n  max_node_count: 0\n",
        "negative":  "pool:\n  drain_timeout_ms: -1\n",
        "transport": "transport:\n  kind: carrier-pigeon\n",
        "catalog":   "catalog:\n  kind: redis\n",
    } {
        t.Run(name, func(t *testing.T) {
            path := filepath.Join(t.TempDir(), "c.yaml")
            require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
            _, err := Load(path)
            assert.Error(t, err)
        })
    }
}
