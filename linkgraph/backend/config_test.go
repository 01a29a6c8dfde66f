package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaultsToBuiltInRoot(t *testing.T) {
	cfg, err := Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, defaultNotebookRoot, cfg.NotebookRoot)
}

func TestResolveExplicitRootWinsOverEnv(t *testing.T) {
	t.Setenv("WENDAO_NOTEBOOK_ROOT", "/from/env")
	cfg, err := Resolve("/from/arg", "")
	require.NoError(t, err)
	assert.Equal(t, "/from/arg", cfg.NotebookRoot)
}

func TestResolveExplicitIncludeListWinsOverAuto(t *testing.T) {
	t.Setenv("WENDAO_INCLUDE_DIRS", "explicit")
	t.Setenv("WENDAO_INCLUDE_DIRS_AUTO", "true")
	cfg, err := Resolve(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"explicit"}, cfg.IncludeDirs)
}

func TestResolveAutoKeepsOnlyCandidatesThatExist(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "notes"), 0o755))

	t.Setenv("WENDAO_INCLUDE_DIRS_AUTO", "1")
	t.Setenv("WENDAO_INCLUDE_DIRS_AUTO_CANDIDATES", "notes,daily")
	cfg, err := Resolve(root, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, cfg.IncludeDirs)
}

func TestResolveAutoWithNoMatchingCandidatesYieldsEmptyIncludes(t *testing.T) {
	root := t.TempDir()
	t.Setenv("WENDAO_INCLUDE_DIRS_AUTO", "true")
	t.Setenv("WENDAO_INCLUDE_DIRS_AUTO_CANDIDATES", "nope")
	cfg, err := Resolve(root, "")
	require.NoError(t, err)
	assert.Empty(t, cfg.IncludeDirs)
}

func TestSourceKeyIsDeterministicAndOrderIndependent(t *testing.T) {
	excl := map[string]bool{"b": true, "a": true}
	k1 := sourceKey("root", []string{"y", "x"}, excl)
	k2 := sourceKey("root", []string{"x", "y"}, excl)
	assert.Equal(t, k1, k2)
}

func TestSourceKeyChangesWithRoot(t *testing.T) {
	excl := map[string]bool{}
	k1 := sourceKey("root-a", nil, excl)
	k2 := sourceKey("root-b", nil, excl)
	assert.NotEqual(t, k1, k2)
}

func TestSchemaFingerprintIsStableAndShort(t *testing.T) {
	f1 := SchemaFingerprint("omni.link_graph.stats.cache.v1")
	f2 := SchemaFingerprint("omni.link_graph.stats.cache.v1")
	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 16)
}

func TestResolveBaselineExcludesAlwaysPresent(t *testing.T) {
	cfg, err := Resolve(t.TempDir(), "")
	require.NoError(t, err)
	assert.True(t, cfg.Excludes[".git"])
}
