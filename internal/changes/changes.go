// Package changes turns a version-control diff into the set of top-level
// directories a change touches.
package changes

import (
	"path"
	"strings"
)

// ParseFileList splits newline-separated diff output into paths, dropping
// blank lines and surrounding whitespace.
func ParseFileList(raw string) []string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	files := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			files = append(files, trimmed)
		}
	}
	return files
}

// Directories returns the distinct first path components of files in
// first-seen order. The result is not filtered against any registry.
func Directories(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	dirs := make([]string, 0, len(files))
	for _, file := range files {
		dir := topLevel(file)
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

func topLevel(file string) string {
	file = strings.TrimSpace(file)
	for strings.HasPrefix(file, "./") {
		file = file[2:]
	}
	file = strings.TrimLeft(file, "/")
	if file == "" {
		return ""
	}
	if idx := strings.IndexByte(file, '/'); idx >= 0 {
		file = file[:idx]
	}
	if file == "." || file == ".." {
		return ""
	}
	return path.Clean(file)
}

// KeepModified returns the members of projects present in dirs, in projects
// order.
func KeepModified(dirs, projects []string) []string {
	modified := make(map[string]struct{}, len(dirs))
	for _, dir := range dirs {
		modified[dir] = struct{}{}
	}
	var out []string
	for _, project := range projects {
		if _, ok := modified[project]; ok {
			out = append(out, project)
		}
	}
	return out
}

// Unregistered returns the entries of dirs that are not in projects.
func Unregistered(dirs, projects []string) []string {
	known := make(map[string]struct{}, len(projects))
	for _, project := range projects {
		known[project] = struct{}{}
	}
	var out []string
	for _, dir := range dirs {
		if _, ok := known[dir]; !ok {
			out = append(out, dir)
		}
	}
	return out
}

// ReviewID extracts the value of a "Review-ID:" trailer from a commit
// message, or "" when there is none.
func ReviewID(message string) string {
	for _, line := range strings.Split(message, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimRight(line, "\r"), "Review-ID:")
		if !ok {
			continue
		}
		if id := strings.TrimSpace(rest); id != "" {
			return id
		}
	}
	return ""
}
