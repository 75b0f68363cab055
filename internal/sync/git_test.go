package sync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// newClone returns a working copy of a fresh bare repository with one
// commit on main.
func newClone(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}
	remote := t.TempDir()
	gitIn(t, remote, "init", "--bare")

	work := t.TempDir()
	gitIn(t, work, "clone", remote, "repo")
	repo := filepath.Join(work, "repo")
	gitIn(t, repo, "config", "user.email", "sync@example.com")
	gitIn(t, repo, "config", "user.name", "Sync Test")
	gitIn(t, repo, "symbolic-ref", "HEAD", "refs/heads/main")
	if err := os.WriteFile(filepath.Join(repo, "README"), []byte("fixtures\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitIn(t, repo, "add", "README")
	gitIn(t, repo, "commit", "-m", "init")
	gitIn(t, repo, "push", "origin", "main")
	return repo
}

func gitIn(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := exec.Command("git", append([]string{"-C", dir}, args...)...).CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func readRepoFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestGitDestination_CommitsOnlyChanges(t *testing.T) {
	ctx := context.Background()
	repo := newClone(t)
	dest := NewGitDestination(repo, "", "main")

	manifest := File{Key: "ds1/manifest.jsonl", Data: []byte(`{"type":"header"}` + "\n")}
	if err := dest.Write(ctx, []File{manifest}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if got := readRepoFile(t, filepath.Join(repo, "ds1", "manifest.jsonl")); got != string(manifest.Data) {
		t.Fatalf("manifest = %q", got)
	}
	if msg := gitIn(t, repo, "log", "-1", "--format=%s"); msg != "sync: update ds1 (1 files)" {
		t.Errorf("commit message = %q", msg)
	}

	head := gitIn(t, repo, "rev-parse", "HEAD")
	if err := dest.Write(ctx, []File{manifest}); err != nil {
		t.Fatalf("unchanged write: %v", err)
	}
	if gitIn(t, repo, "rev-parse", "HEAD") != head {
		t.Fatal("unchanged files produced a commit")
	}

	manifest.Data = []byte(`{"type":"header","file_count":1}` + "\n")
	if err := dest.Write(ctx, []File{manifest}); err != nil {
		t.Fatalf("changed write: %v", err)
	}
	if gitIn(t, repo, "rev-parse", "HEAD") == head {
		t.Fatal("changed files were not committed")
	}
	if remote := gitIn(t, repo, "rev-parse", "origin/main"); remote != gitIn(t, repo, "rev-parse", "HEAD") {
		t.Error("commit was not pushed")
	}
}

func TestGitDestination_PrunesStaleFiles(t *testing.T) {
	ctx := context.Background()
	repo := newClone(t)
	dest := NewGitDestination(repo, "fixtures/samples", "main")

	shot := File{Key: "ds1/data.jsonz/Shot.json.z", Data: []byte{0x78, 0xda, 0x01}}
	asset := File{Key: "ds1/data.jsonz/Asset.json.z", Data: []byte{0x78, 0xda, 0x02}}
	other := File{Key: "ds2/data.jsonz/Shot.json.z", Data: []byte{0x78, 0xda, 0x03}}
	if err := dest.Write(ctx, []File{asset, shot, other}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := dest.Write(ctx, []File{shot}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	base := filepath.Join(repo, "fixtures", "samples")
	if _, err := os.Stat(filepath.Join(base, "ds1", "data.jsonz", "Asset.json.z")); !os.IsNotExist(err) {
		t.Errorf("stale Asset snapshot should be removed, stat err = %v", err)
	}
	if got := readRepoFile(t, filepath.Join(base, "ds1", "data.jsonz", "Shot.json.z")); got != string(shot.Data) {
		t.Errorf("Shot snapshot = %q", got)
	}
	// Samples not named by the write are left alone.
	if got := readRepoFile(t, filepath.Join(base, "ds2", "data.jsonz", "Shot.json.z")); got != string(other.Data) {
		t.Errorf("ds2 snapshot = %q", got)
	}
	if tracked := gitIn(t, repo, "ls-files", "fixtures/samples/ds1"); tracked != "fixtures/samples/ds1/data.jsonz/Shot.json.z" {
		t.Errorf("tracked ds1 files = %q", tracked)
	}
}
