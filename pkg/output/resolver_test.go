package output

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolverPath(t *testing.T) {
	tests := []struct {
		name         string
		naming       Naming
		hierarchy    []string
		resourceType string
		want         string
	}{
		{
			name:         "lowercase",
			naming:       NamingLowercase,
			hierarchy:    []string{"MyGroup", "Sub Group"},
			resourceType: "Issues",
			want:         filepath.Join("root", "mygroup", "sub group", "issues.jsonl"),
		},
		{
			name:         "kebab-case",
			naming:       NamingKebab,
			hierarchy:    []string{"My Group", "sub_group"},
			resourceType: "Merge_Requests",
			want:         filepath.Join("root", "my-group", "sub-group", "merge-requests.jsonl"),
		},
		{
			name:         "snake_case",
			naming:       NamingSnake,
			hierarchy:    []string{"My Group", "sub-group"},
			resourceType: "Merge-Requests",
			want:         filepath.Join("root", "my_group", "sub_group", "merge_requests.jsonl"),
		},
		{
			name:         "empty hierarchy resolves under root",
			naming:       NamingLowercase,
			hierarchy:    nil,
			resourceType: "users",
			want:         filepath.Join("root", "users.jsonl"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver("root", tt.naming)
			got := r.Path(tt.hierarchy, tt.resourceType)
			if got != tt.want {
				t.Errorf("Path() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolverIsDeterministic(t *testing.T) {
	r := NewResolver("root", NamingKebab)
	hierarchy := []string{"Group A", "Project B"}

	first := r.Path(hierarchy, "issues")
	second := r.Path(hierarchy, "issues")
	if first != second {
		t.Errorf("Equal inputs resolved differently: %q vs %q", first, second)
	}
}

func TestResolverCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root, NamingLowercase)

	path, err := r.Resolve([]string{"group", "project"}, "issues")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("Expected parent directory to exist: %v", err)
	}

	// Resolving again must succeed, existing directories are not an error
	again, err := r.Resolve([]string{"group", "project"}, "issues")
	if err != nil {
		t.Fatalf("Second resolve failed: %v", err)
	}
	if again != path {
		t.Errorf("Resolve not stable: %q vs %q", again, path)
	}

	// The target file itself is not created by resolution
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected resolve to leave the target file absent")
	}
}

func TestParseNaming(t *testing.T) {
	if _, err := ParseNaming("kebab-case"); err != nil {
		t.Errorf("Expected kebab-case to parse: %v", err)
	}
	if _, err := ParseNaming(""); err != nil {
		t.Errorf("Expected empty naming to default: %v", err)
	}
	if _, err := ParseNaming("camelCase"); err == nil {
		t.Error("Expected unknown naming to fail")
	}
}
