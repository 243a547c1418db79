// Package skills models a skill: a directory identified by a SKILL.md
// manifest whose YAML frontmatter carries at minimum a name and a
// description. The directory is the unit of distribution across platform
// installation roots.
package skills

import "path/filepath"

// ManifestFileName is the manifest that marks a directory as a skill.
const ManifestFileName = "SKILL.md"

// Skill represents a skill loaded from its manifest.
type Skill struct {
	Name        string         // Unique name from frontmatter
	Description string         // Brief description from frontmatter
	Directory   string         // Full path to the skill directory
	Metadata    map[string]any // Full frontmatter key-value mapping
}

// DirName returns the directory base name the skill is materialized
// under; this is the identity used when locating the skill at other
// installation roots.
func (s *Skill) DirName() string {
	if s.Directory == "" {
		return s.Name
	}
	return filepath.Base(s.Directory)
}
