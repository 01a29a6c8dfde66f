// Package backend resolves the link-graph engine's operating
// configuration and wires a linkgraph.Engine to a concrete notebook on
// disk: it settles the notebook root, include/exclude sets, and cache
// source key, validates an optional settings file, and drives the
// engine's refresh planner against a linkgraph.Scanner.
package backend

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// baselineExcludes can be extended by settings or env but never
// shrunk; every entry here is always skipped.
var baselineExcludes = map[string]bool{
	".git": true, ".cache": true, ".devenv": true, ".run": true, ".venv": true,
}

// Config is the resolved, immutable configuration for one backend
// instance. Use Resolve to build one from the precedence chain.
type Config struct {
	NotebookRoot string
	IncludeDirs  []string
	Excludes     map[string]bool
	SourceKey    string
}

// Settings is the shape of an optional on-disk settings file
// (notebook.settings.json). A set environment variable overrides the
// matching field; fields left zero fall through to the built-in default.
type Settings struct {
	NotebookRoot           string   `json:"notebook_root,omitempty"`
	IncludeDirs            []string `json:"include_dirs,omitempty"`
	IncludeDirsAuto        bool     `json:"include_dirs_auto,omitempty"`
	IncludeDirsCandidates  []string `json:"include_dirs_auto_candidates,omitempty"`
	ExcludeDirs            []string `json:"exclude_dirs,omitempty"`
}

const settingsSchemaJSON = `{
  "type": "object",
  "properties": {
    "notebook_root": {"type": "string"},
    "include_dirs": {"type": "array", "items": {"type": "string"}},
    "include_dirs_auto": {"type": "boolean"},
    "include_dirs_auto_candidates": {"type": "array", "items": {"type": "string"}},
    "exclude_dirs": {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": false
}`

// defaultIncludeCandidates is the candidate set auto-resolution probes
// when no explicit candidate list is given: the notebook layout
// conventions this engine itself expects to find.
var defaultIncludeCandidates = []string{"notes", "daily", "projects", "refs", "inbox"}

const defaultNotebookRoot = "./notebook"

// Resolve settles the effective Config following, in descending
// priority: explicit constructor argument, WENDAO_NOTEBOOK_ROOT (and
// _INCLUDE_DIRS / _INCLUDE_DIRS_AUTO / _INCLUDE_DIRS_AUTO_CANDIDATES /
// _EXCLUDE_DIRS) environment variables, the settings file at
// settingsPath (validated against settingsSchemaJSON when present),
// and finally the built-in default. When no explicit include list is
// given and auto-resolution is on, each candidate is kept iff it
// exists as a directory entry under the resolved notebook root.
func Resolve(explicitRoot string, settingsPath string) (Config, error) {
	root := explicitRoot
	var includes, excludes, candidates []string
	var includeAuto bool
	var settingsRoot string

	if settingsPath != "" {
		if raw, err := os.ReadFile(settingsPath); err == nil {
			settings, err := parseSettings(raw)
			if err != nil {
				return Config{}, fmt.Errorf("backend: invalid settings file %s: %w", settingsPath, err)
			}
			settingsRoot = settings.NotebookRoot
			includes = settings.IncludeDirs
			includeAuto = settings.IncludeDirsAuto
			candidates = settings.IncludeDirsCandidates
			excludes = settings.ExcludeDirs
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("backend: reading settings file %s: %w", settingsPath, err)
		}
	}

	if root == "" {
		if v := os.Getenv("WENDAO_NOTEBOOK_ROOT"); v != "" {
			root = v
		}
	}
	if root == "" {
		root = settingsRoot
	}
	if v := os.Getenv("WENDAO_INCLUDE_DIRS"); v != "" {
		includes = splitCSV(v)
	}
	if v := os.Getenv("WENDAO_INCLUDE_DIRS_AUTO"); v != "" {
		includeAuto = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("WENDAO_INCLUDE_DIRS_AUTO_CANDIDATES"); v != "" {
		candidates = splitCSV(v)
	}
	if v := os.Getenv("WENDAO_EXCLUDE_DIRS"); v != "" {
		excludes = splitCSV(v)
	}
	if root == "" {
		root = defaultNotebookRoot
	}

	// explicit list wins; otherwise, when auto is on, keep each
	// candidate that exists under the notebook root.
	if len(includes) == 0 && includeAuto {
		if len(candidates) == 0 {
			candidates = defaultIncludeCandidates
		}
		includes = resolveAutoIncludes(root, candidates)
	}

	excludeSet := map[string]bool{}
	for k := range baselineExcludes {
		excludeSet[k] = true
	}
	for _, e := range excludes {
		excludeSet[strings.ToLower(strings.TrimSpace(e))] = true
	}

	return Config{
		NotebookRoot: root,
		IncludeDirs:  includes,
		Excludes:     excludeSet,
		SourceKey:    sourceKey(root, includes, excludeSet),
	}, nil
}

// resolveAutoIncludes keeps each candidate that exists as a directory
// entry under root, preserving the candidate order given.
func resolveAutoIncludes(root string, candidates []string) []string {
	kept := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, err := os.Stat(filepath.Join(root, c)); err == nil {
			kept = append(kept, c)
		}
	}
	return kept
}

func parseSettings(raw []byte) (Settings, error) {
	schema := new(jsonschema.Schema)
	if err := json.Unmarshal([]byte(settingsSchemaJSON), schema); err != nil {
		return Settings{}, fmt.Errorf("compiling settings schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return Settings{}, fmt.Errorf("resolving settings schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return Settings{}, fmt.Errorf("parsing settings json: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return Settings{}, fmt.Errorf("settings failed schema validation: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sourceKey is the deterministic identity of a backend's effective
// scan scope; statscache uses it to invalidate entries when the scan
// scope itself changes, independent of note content.
func sourceKey(root string, includes []string, excludes map[string]bool) string {
	exclList := make([]string, 0, len(excludes))
	for k := range excludes {
		exclList = append(exclList, k)
	}
	sort.Strings(exclList)
	incl := append([]string(nil), includes...)
	sort.Strings(incl)
	return fmt.Sprintf("%s | include=%s | exclude=%s", root, strings.Join(incl, ","), strings.Join(exclList, ","))
}

// SchemaFingerprint returns a stable short identifier for the config
// shape that produced src, used to invalidate cached artifacts across
// backend code revisions rather than content revisions.
func SchemaFingerprint(src string) string {
	sum := sha1.Sum([]byte(src))
	return hex.EncodeToString(sum[:])[:16]
}
