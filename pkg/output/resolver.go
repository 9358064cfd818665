package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Naming is a file naming convention applied to every path segment
type Naming string

const (
	NamingLowercase Naming = "lowercase"
	NamingKebab     Naming = "kebab-case"
	NamingSnake     Naming = "snake_case"
)

// Extension is fixed: one serialized record per line
const Extension = ".jsonl"

// Resolver maps a hierarchy of path segments plus a resource type to a
// canonical file path under the configured root directory.
type Resolver struct {
	root   string
	naming Naming
}

// NewResolver creates a resolver rooted at root using the given convention
func NewResolver(root string, naming Naming) *Resolver {
	if naming == "" {
		naming = NamingLowercase
	}
	return &Resolver{root: root, naming: naming}
}

// Root returns the configured root directory
func (r *Resolver) Root() string {
	return r.root
}

// Path derives the target file path without touching the filesystem.
// Equal inputs always produce equal paths. An empty hierarchy resolves
// directly under the root.
func (r *Resolver) Path(hierarchy []string, resourceType string) string {
	parts := make([]string, 0, len(hierarchy)+2)
	parts = append(parts, r.root)
	for _, segment := range hierarchy {
		parts = append(parts, ApplyNaming(segment, r.naming))
	}
	parts = append(parts, ApplyNaming(resourceType, r.naming)+Extension)
	return filepath.Join(parts...)
}

// Resolve derives the target path and creates its parent directories.
// An already-existing directory is success, not failure.
func (r *Resolver) Resolve(hierarchy []string, resourceType string) (string, error) {
	path := r.Path(hierarchy, resourceType)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return path, nil
}

// ApplyNaming transforms one path segment according to the convention
func ApplyNaming(segment string, naming Naming) string {
	s := strings.ToLower(strings.TrimSpace(segment))
	switch naming {
	case NamingKebab:
		return strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	case NamingSnake:
		return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	default:
		return s
	}
}

// ParseNaming validates a configured naming convention string
func ParseNaming(s string) (Naming, error) {
	switch Naming(strings.ToLower(s)) {
	case NamingLowercase, "":
		return NamingLowercase, nil
	case NamingKebab:
		return NamingKebab, nil
	case NamingSnake:
		return NamingSnake, nil
	default:
		return "", fmt.Errorf("unknown file naming convention: %s", s)
	}
}
