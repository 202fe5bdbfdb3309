package sysfs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runner executes a command and returns its stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// ShellWriter performs reads and writes through a command prefix such as
// "sudo -n" or "su -c". Values and paths are passed as positional arguments,
// never interpolated into the script. A prefix ending in "-c" takes a single
// command string, so the command is single-quoted word by word and passed as
// one argument.
type ShellWriter struct {
	prefix []string
	run    runner
}

// NewShellWriter parses a whitespace-separated command prefix.
// An empty prefix runs the shell directly.
func NewShellWriter(prefix string) *ShellWriter {
	return &ShellWriter{prefix: strings.Fields(prefix), run: execRunner}
}

func (s *ShellWriter) command(args ...string) (string, []string) {
	if n := len(s.prefix); n > 0 && s.prefix[n-1] == "-c" {
		quoted := make([]string, len(args))
		for i, a := range args {
			quoted[i] = shellQuote(a)
		}
		args = []string{strings.Join(quoted, " ")}
	}
	full := append(append([]string{}, s.prefix...), args...)
	return full[0], full[1:]
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *ShellWriter) Write(ctx context.Context, path, value string) error {
	name, args := s.command("sh", "-c", `printf '%s' "$1" > "$2"`, "sysbind", value, path)
	if _, err := s.run(ctx, name, args...); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (s *ShellWriter) ReadFirstLine(ctx context.Context, path string) (string, error) {
	name, args := s.command("head", "-n", "1", path)
	out, err := s.run(ctx, name, args...)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimRight(string(out), "\r\n"), nil
}

func (s *ShellWriter) Exists(path string) bool {
	name, args := s.command("test", "-e", path)
	_, err := s.run(context.Background(), name, args...)
	return err == nil
}
