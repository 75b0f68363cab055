package sync

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// GitDestination mirrors samples into a directory of a local git clone,
// then commits and pushes.
type GitDestination struct {
	repo   string
	dir    string
	branch string
}

// NewGitDestination returns a destination writing under dir inside the clone
// at repo and pushing branch.
func NewGitDestination(repo, dir, branch string) *GitDestination {
	return &GitDestination{repo: repo, dir: dir, branch: branch}
}

func (d *GitDestination) String() string { return "git:" + filepath.Join(d.repo, d.dir) }

// Write replaces each sample named by the file keys with exactly the given
// files. Files a sample no longer has are removed. Nothing is committed when
// the tree is unchanged.
func (d *GitDestination) Write(ctx context.Context, files []File) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// A fresh remote has no branch to pull yet.
	_, _ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	want := make(map[string][]byte, len(files))
	for _, f := range files {
		want[filepath.Join(d.dir, filepath.FromSlash(f.Key))] = f.Data
	}
	samples := sampleDirs(d.dir, files)

	for _, sample := range samples {
		if err := d.removeStale(sample, want); err != nil {
			return err
		}
	}
	for rel, data := range want {
		abs := filepath.Join(d.repo, rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(rel), err)
		}
		if err := os.WriteFile(abs, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}

	if _, err := d.git(ctx, append([]string{"add", "-A", "--"}, samples...)...); err != nil {
		return err
	}
	status, err := d.git(ctx, append([]string{"status", "--porcelain", "--"}, samples...)...)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(status)) == 0 {
		return nil
	}

	msg := fmt.Sprintf("sync: update %s (%d files)", strings.Join(sampleNames(files), ", "), len(files))
	if _, err := d.git(ctx, "commit", "-m", msg); err != nil {
		return err
	}
	_, err = d.git(ctx, "push", "origin", d.branch)
	return err
}

// removeStale deletes files under the sample directory that are not in want.
func (d *GitDestination) removeStale(sample string, want map[string][]byte) error {
	root := filepath.Join(d.repo, sample)
	err := filepath.WalkDir(root, func(p string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return err
		}
		rel, err := filepath.Rel(d.repo, p)
		if err != nil {
			return err
		}
		if _, ok := want[rel]; ok {
			return nil
		}
		return os.Remove(p)
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("prune %s: %w", sample, err)
	}
	return nil
}

func (d *GitDestination) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// sampleNames returns the first key component of every file, sorted and
// deduplicated.
func sampleNames(files []File) []string {
	seen := map[string]bool{}
	var names []string
	for _, f := range files {
		name, _, _ := strings.Cut(f.Key, "/")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func sampleDirs(dir string, files []File) []string {
	names := sampleNames(files)
	for i, n := range names {
		names[i] = filepath.Join(dir, n)
	}
	return names
}
