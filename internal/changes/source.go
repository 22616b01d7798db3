package changes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrDiff marks a failure to determine the modified file set. Callers must
// treat it as fatal: an empty list would silently skip CI.
var ErrDiff = errors.New("changes: cannot determine modified files")

// Source yields the files modified by a change.
type Source interface {
	ModifiedFiles(ctx context.Context) ([]string, error)
}

// StaticSource returns a fixed list, e.g. from MODIFIED_FILES.
type StaticSource []string

// ModifiedFiles implements Source.
func (s StaticSource) ModifiedFiles(context.Context) ([]string, error) {
	out := make([]string, 0, len(s))
	for _, file := range s {
		if trimmed := strings.TrimSpace(file); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

// GitSource diffs HEAD against the merge base with BaseBranch.
type GitSource struct {
	// Dir is the checkout; empty means the process working directory.
	Dir string
	// BaseBranch defaults to "main".
	BaseBranch string
	// Fetch refreshes BaseBranch from origin before diffing.
	Fetch bool
	// Binary defaults to "git".
	Binary string
}

func (g GitSource) base() string {
	if b := strings.TrimSpace(g.BaseBranch); b != "" {
		return b
	}
	return "main"
}

// ModifiedFiles implements Source.
func (g GitSource) ModifiedFiles(ctx context.Context) ([]string, error) {
	base := g.base()
	if g.Fetch {
		if _, err := g.run(ctx, "fetch", "origin", base+":"+base); err != nil {
			return nil, fmt.Errorf("%w: fetch %s: %v", ErrDiff, base, err)
		}
	}
	out, err := g.run(ctx, "diff", "--name-only", base+"...HEAD")
	if err != nil {
		return nil, fmt.Errorf("%w: diff %s...HEAD: %v", ErrDiff, base, err)
	}
	return ParseFileList(out), nil
}

// HeadMessage returns the full message of the HEAD commit.
func (g GitSource) HeadMessage(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "log", "--format=%B", "-n", "1")
	if err != nil {
		return "", fmt.Errorf("changes: read head commit message: %w", err)
	}
	return out, nil
}

func (g GitSource) run(ctx context.Context, args ...string) (string, error) {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = g.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := firstLine(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

// firstLine drops the usage text git prints after its error message.
func firstLine(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(line)
}
