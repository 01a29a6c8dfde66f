// Package gatekeeper is a pure policy function over skill manifests: it
// decides whether a caller skill may invoke a target tool, performing
// no I/O of its own.
package gatekeeper

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidToolName is returned when tool_name is not "<target_skill>.<command>".
var ErrInvalidToolName = fmt.Errorf("gatekeeper: tool name must be <target_skill>.<command>")

// ErrIdentityVerificationFailed is returned when the caller skill has no
// registered manifest entry.
var ErrIdentityVerificationFailed = fmt.Errorf("gatekeeper: identity verification failed")

// PermissionDeniedError reports a capability the caller lacked.
type PermissionDeniedError struct {
	Required string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("gatekeeper: permission denied (required=%s)", e.Required)
}

// OverloadHint is the structured, typed replacement for the source's
// free-form "protocol guidance" string: a stage name and a suggested
// next action, spliced into human-visible output by callers when the
// target is under load.
type OverloadHint struct {
	Stage      string `yaml:"stage"`
	Suggestion string `yaml:"suggestion"`
}

// Manifest is a skill's declared identity and granted capabilities, as
// decoded from YAML by ParseManifests or handed to the kernel through
// its Options.Manifests.
type Manifest struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// ParseManifests decodes a YAML document containing a list of skill
// manifests into a permission index keyed by skill name.
func ParseManifests(doc []byte) (map[string][]string, error) {
	var manifests []Manifest
	if err := yaml.Unmarshal(doc, &manifests); err != nil {
		return nil, fmt.Errorf("gatekeeper: parsing manifests: %w", err)
	}
	return BuildPermissionIndex(manifests), nil
}

// BuildPermissionIndex collapses a manifest list into a lookup table.
func BuildPermissionIndex(manifests []Manifest) map[string][]string {
	index := make(map[string][]string, len(manifests))
	for _, m := range manifests {
		index[m.Name] = m.Permissions
	}
	return index
}

// ToolName is the parsed "<target_skill>.<command>" identifier.
type ToolName struct {
	TargetSkill string
	Command     string
}

func (t ToolName) String() string { return t.TargetSkill + "." + t.Command }

// ParseToolName splits a tool identifier on its first '.'. Both parts
// must be non-empty.
func ParseToolName(toolName string) (ToolName, error) {
	idx := strings.Index(toolName, ".")
	if idx <= 0 || idx == len(toolName)-1 {
		return ToolName{}, ErrInvalidToolName
	}
	return ToolName{TargetSkill: toolName[:idx], Command: toolName[idx+1:]}, nil
}

// ValidateOrRaise resolves whether skillName may invoke toolName.
//
//  1. toolName must parse as <target_skill>.<command>.
//  2. An empty skillName denotes the root/user caller: access is
//     granted unconditionally.
//  3. Otherwise skillPermissions[skillName] must exist, or
//     ErrIdentityVerificationFailed.
//  4. The parsed tool identifier must appear in that caller's
//     permission list, or a *PermissionDeniedError naming it.
//  5. On success, guidance is passed back unchanged so callers may
//     splice its Suggestion into human-visible output.
func ValidateOrRaise(skillName, toolName string, skillPermissions map[string][]string, guidance *OverloadHint) (*OverloadHint, error) {
	tool, err := ParseToolName(toolName)
	if err != nil {
		return nil, err
	}

	if skillName == "" {
		return guidance, nil
	}

	perms, ok := skillPermissions[skillName]
	if !ok {
		return nil, ErrIdentityVerificationFailed
	}

	required := tool.String()
	for _, p := range perms {
		if p == required {
			return guidance, nil
		}
	}
	return nil, &PermissionDeniedError{Required: required}
}
