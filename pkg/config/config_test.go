package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/solidcsg/pkg/kernel/sdfx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solidcsg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyFileGivesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
cache:
  approx_max_bytes: 1024
features:
  lazy_union: true
  flatten: true
  push_through_hull: true
backend:
  mesh_cells: 64
engine:
  timeout: 30s
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1024), cfg.Cache.ApproxMaxBytes)
	assert.Equal(t, Default().Cache.ExactMaxBytes, cfg.Cache.ExactMaxBytes, "unset keys keep defaults")
	assert.True(t, cfg.Features.LazyUnion)
	assert.True(t, cfg.Features.Flatten)
	assert.True(t, cfg.Features.PushThroughHull)
	assert.True(t, cfg.Features.PushTransforms, "unset keys keep defaults")
	assert.Equal(t, BackendSdfx, cfg.Backend.Name)
	assert.Equal(t, 64, cfg.Backend.MeshCells)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "cache:\n  approx_max_byte: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approx_max_byte")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "cache: [unclosed"))
	require.Error(t, err)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	path := writeConfig(t, "backend:\n  mesh_cells: 64\nfeatures:\n  lazy_union: false\n")
	t.Setenv("SOLIDCSG_MESH_CELLS", "32")
	t.Setenv("SOLIDCSG_LAZY_UNION", "true")
	t.Setenv("SOLIDCSG_EVAL_TIMEOUT", "250ms")
	t.Setenv("SOLIDCSG_LOG_FORMAT", "JSON")
	t.Setenv("SOLIDCSG_CACHE_EXACT_MAX_BYTES", "4096")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Backend.MeshCells)
	assert.True(t, cfg.Features.LazyUnion)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, int64(4096), cfg.Cache.ExactMaxBytes)
}

func TestEnvironmentParseErrorsAreCollected(t *testing.T) {
	t.Setenv("SOLIDCSG_MESH_CELLS", "many")
	t.Setenv("SOLIDCSG_FLATTEN", "perhaps")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOLIDCSG_MESH_CELLS")
	assert.Contains(t, err.Error(), "SOLIDCSG_FLATTEN")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Cache.ApproxMaxBytes = 0
	cfg.Backend.Name = "cgal"
	cfg.Backend.MeshCells = -1
	cfg.Engine.Timeout = 0
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 6)
	for _, want := range []string{"approx_max_bytes", "backend.name", "mesh_cells", "engine.timeout", "log.level", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"
	log := cfg.Logger(&buf)

	log.Info("hidden")
	log.Warn("shown", slog.Int("node", 3))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"), "expected JSON output, got %q", out)
	assert.Contains(t, out, `"node":3`)
}

func TestNewBackend(t *testing.T) {
	quiet := Default().Logger(&bytes.Buffer{})

	k, err := Default().NewBackend(quiet)
	require.NoError(t, err)
	assert.IsType(t, &sdfx.Kernel{}, k)

	cfg := Default()
	cfg.Backend.Name = BackendManifold
	k, err = cfg.NewBackend(quiet)
	if err != nil {
		// Built without the manifold tag.
		assert.Contains(t, err.Error(), "manifold")
		return
	}
	assert.NotNil(t, k)
}

func TestOptionBuilders(t *testing.T) {
	cfg := Default()
	quiet := cfg.Logger(&bytes.Buffer{})
	c := cfg.NewCache(quiet)
	require.NotNil(t, c)

	assert.Len(t, cfg.EvaluatorOptions(c, quiet), 4)
	assert.Len(t, cfg.FlattenOptions(quiet), 4)
	assert.Len(t, cfg.EngineOptions("part.scad", quiet), 3)
}
