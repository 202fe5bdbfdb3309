package binding

import (
	"strings"

	"github.com/kalambet/sysbind/internal/sysfs"
)

// Resolve determines the effective target(s) for a binding.
//
// A configured single path wins over a path list. For a list, the first
// candidate that exists becomes the representative path; the full list is
// kept only for multi-file bindings with a usable representative.
// Empty inputs count as "not configured".
func Resolve(probe sysfs.Prober, single string, list []string, multiFile bool) (string, []string) {
	if single = strings.TrimSpace(single); single != "" {
		return checkPath(probe, single), nil
	}

	candidates := normalize(list)
	if len(candidates) == 0 {
		return "", nil
	}

	path := checkPaths(probe, candidates)
	if path == "" || !multiFile {
		return path, nil
	}
	return path, candidates
}

func checkPath(probe sysfs.Prober, path string) string {
	if probe.Exists(path) {
		return path
	}
	return ""
}

// checkPaths probes every candidate and returns the first usable one.
func checkPaths(probe sysfs.Prober, paths []string) string {
	first := ""
	for _, p := range paths {
		if probe.Exists(p) && first == "" {
			first = p
		}
	}
	return first
}

func normalize(list []string) []string {
	var out []string
	for _, p := range list {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
