// Package validate checks a skill directory against the agent skills
// manifest rules: required frontmatter fields, naming constraints and
// length limits.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/jingkaihe/skillsync/pkg/skills"
)

const (
	maxNameLength          = 64
	maxDescriptionLength   = 1024
	maxCompatibilityLength = 500
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// allowedFields are the recognized frontmatter keys; anything else is
// flagged.
var allowedFields = map[string]bool{
	"name":          true,
	"description":   true,
	"license":       true,
	"compatibility": true,
	"metadata":      true,
	"allowed-tools": true,
}

// Result collects findings for one skill.
type Result struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Info     []string `json:"info"`
}

// Valid reports whether the skill passed (no errors).
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) infof(format string, args ...any) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

// CheckSkill validates the skill at dir. In strict mode warnings are
// promoted to errors.
func CheckSkill(dir string, strict bool) Result {
	var result Result

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		result.errorf("not a skill directory: %s", dir)
		return result
	}

	skill, err := skills.LoadManifest(dir)
	if err != nil {
		result.errorf("invalid manifest: %v", err)
		return result
	}

	checkName(&result, skill.Name, filepath.Base(dir))
	checkDescription(&result, skill.Description)
	checkOptionalFields(&result, skill.Metadata)

	if strict {
		result.Errors = append(result.Errors, result.Warnings...)
		result.Warnings = nil
	}

	if result.Valid() {
		result.infof("skill %q is valid", skill.Name)
	}
	return result
}

func checkName(result *Result, name, dirName string) {
	if len(name) > maxNameLength {
		result.errorf("name exceeds %d characters (%d)", maxNameLength, len(name))
	}
	if !namePattern.MatchString(name) {
		result.errorf("name %q must be lowercase alphanumeric words separated by single hyphens", name)
	}
	if name != dirName {
		result.warnf("name %q does not match directory name %q", name, dirName)
	}
}

func checkDescription(result *Result, description string) {
	if len(description) > maxDescriptionLength {
		result.errorf("description exceeds %d characters (%d)", maxDescriptionLength, len(description))
	}
}

func checkOptionalFields(result *Result, metadata map[string]any) {
	if compat, ok := metadata["compatibility"].(string); ok && len(compat) > maxCompatibilityLength {
		result.errorf("compatibility exceeds %d characters (%d)", maxCompatibilityLength, len(compat))
	}

	var unknown []string
	for key := range metadata {
		if !allowedFields[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		result.warnf("unknown frontmatter field %q", key)
	}
}
