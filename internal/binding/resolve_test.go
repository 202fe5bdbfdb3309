package binding

import (
	"slices"
	"testing"
)

func TestResolve(t *testing.T) {
	probe := newFakeIO("/sys/a", "/sys/b", "/sys/c")

	tests := []struct {
		name      string
		single    string
		list      []string
		multi     bool
		wantPath  string
		wantPaths []string
	}{
		{name: "nothing configured"},
		{name: "empty list", list: []string{}},
		{name: "blank single", single: "   "},
		{name: "single exists", single: " /sys/a ", wantPath: "/sys/a"},
		{name: "single missing", single: "/sys/missing"},
		{name: "single wins over list", single: "/sys/a", list: []string{"/sys/b"}, multi: true, wantPath: "/sys/a"},
		{name: "list first usable", list: []string{"/sys/missing", "/sys/b", "/sys/c"}, wantPath: "/sys/b"},
		{name: "list none usable", list: []string{"/sys/x", "/sys/y"}, multi: true},
		{
			name:      "list kept for multi-file",
			list:      []string{"/sys/a", " ", "/sys/b"},
			multi:     true,
			wantPath:  "/sys/a",
			wantPaths: []string{"/sys/a", "/sys/b"},
		},
		{name: "list dropped without multi-file", list: []string{"/sys/a", "/sys/b"}, wantPath: "/sys/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, paths := Resolve(probe, tt.single, tt.list, tt.multi)
			if path != tt.wantPath {
				t.Errorf("path = %q, want %q", path, tt.wantPath)
			}
			if !slices.Equal(paths, tt.wantPaths) {
				t.Errorf("paths = %v, want %v", paths, tt.wantPaths)
			}
			if tt.wantPaths == nil && paths != nil {
				t.Errorf("paths = %#v, want nil", paths)
			}
		})
	}
}
