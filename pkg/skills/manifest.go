package skills

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// LoadManifest parses dir/SKILL.md and returns the skill it describes.
// A directory without a readable manifest, or a manifest missing the
// required name/description fields, is not a valid skill.
func LoadManifest(dir string) (*Skill, error) {
	manifestPath := filepath.Join(dir, ManifestFileName)

	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill manifest")
	}

	metadata, err := parseFrontmatter(content)
	if err != nil {
		return nil, err
	}

	name, _ := metadata["name"].(string)
	description, _ := metadata["description"].(string)

	if name == "" {
		return nil, errors.New("skill name is required in frontmatter")
	}
	if description == "" {
		return nil, errors.New("skill description is required in frontmatter")
	}

	return &Skill{
		Name:        name,
		Description: description,
		Directory:   dir,
		Metadata:    metadata,
	}, nil
}

// parseFrontmatter extracts the YAML frontmatter of a SKILL.md document
// as a key-value mapping.
func parseFrontmatter(content []byte) (map[string]any, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metadata := meta.Get(pctx)
	if metadata == nil {
		return nil, errors.New("missing frontmatter")
	}

	return metadata, nil
}

// DiscoverSkills finds all valid skills in the immediate subdirectories
// of root. Directories without a parseable manifest are excluded; a
// missing root yields an empty map.
func DiscoverSkills(root string) (map[string]*Skill, error) {
	found := make(map[string]*Skill)

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return found, nil
		}
		return nil, errors.Wrapf(err, "failed to read skills directory %s", root)
	}

	for _, entry := range entries {
		entryPath := filepath.Join(root, entry.Name())

		// os.Stat so symlinked skill directories are included.
		info, err := os.Stat(entryPath)
		if err != nil || !info.IsDir() {
			continue
		}

		skill, err := LoadManifest(entryPath)
		if err != nil {
			continue
		}

		found[entry.Name()] = skill
	}

	return found, nil
}

// SkillNames returns the directory names of a discovery result in sorted
// order.
func SkillNames(found map[string]*Skill) []string {
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
