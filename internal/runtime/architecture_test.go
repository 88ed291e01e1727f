package runtime

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
)

// guardedFieldAssignment matches a direct assignment to one of the
// mutation-guard fields named in spec §4.2 — e.g. `sess.State = x` or
// `s.BackendSessionID = id` — but not a comparison (`==`) or a struct
// literal field (`State: x`).
var guardedFieldAssignment = regexp.MustCompile(
	`\.(State|LastStatus|AdapterName|BackendSessionID|MessageHistory|QueuedMessage|Consumers|PendingMessages|PendingPermissions)\s*=[^=]`,
)

// exemptDirs are packages allowed to assign these fields directly:
// internal/runtime itself (the sole mutator) and pkg/types (which
// defines the struct and its own copy/clone methods).
var exemptDirs = []string{
	filepath.Join("internal", "runtime"),
	filepath.Join("pkg", "types"),
}

// TestMutationGuardNoDirectFieldAssignmentOutsideRuntime walks every Go
// source file in the module (excluding the example pack and this
// package's own files) and fails if anything assigns directly into a
// field the mutation guard reserves for internal/runtime's named
// methods (spec §4.2). This is the "architecture test" the spec calls
// for in place of relying on encapsulation alone — the fields are
// exported because pkg/types is shared data, not because outside
// writers are welcome.
func TestMutationGuardNoDirectFieldAssignmentOutsideRuntime(t *testing.T) {
	root := moduleRoot(t)

	var violations []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			base := info.Name()
			if base == "_examples" || base == ".git" || base == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		for _, dir := range exemptDirs {
			if strings.HasPrefix(rel, dir+string(filepath.Separator)) || rel == dir {
				return nil
			}
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "//") {
				continue
			}
			if guardedFieldAssignment.MatchString(line) {
				violations = append(violations, rel+":"+strconv.Itoa(lineNo)+": "+trimmed)
			}
		}
		return scanner.Err()
	})
	if err != nil {
		t.Fatalf("walking module root: %v", err)
	}

	if len(violations) > 0 {
		t.Fatalf("found direct field assignment(s) outside internal/runtime, violating the mutation guard (spec §4.2):\n%s",
			strings.Join(violations, "\n"))
	}
}

// moduleRoot finds the repository root by walking up from the current
// working directory until it finds go.mod.
func moduleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not locate module root (go.mod not found)")
		}
		dir = parent
	}
}
