package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quarkpan/quarkpan/internal/api"
	"github.com/quarkpan/quarkpan/internal/constants"
	"github.com/quarkpan/quarkpan/internal/models"
	"github.com/quarkpan/quarkpan/internal/traverse"
)

// TestCommandTree checks every command is registered
func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	for _, path := range [][]string{
		{"login"}, {"whoami"}, {"save"}, {"share"}, {"share", "retry"},
		{"download"}, {"mkdir"}, {"config", "show"}, {"config", "set-dest"}, {"config", "path"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil {
			t.Errorf("command %v not found: %v", path, err)
			continue
		}
		if cmd.Short == "" {
			t.Errorf("command %v has no short description", path)
		}
	}

	for _, name := range []string{"config", "cookie", "cookie-file", "log-file", "verbose", "debug"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("global flag --%s missing", name)
		}
	}
}

func TestShareFlags(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)
	share, _, err := root.Find([]string{"share"})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"depth", "expiry", "encrypt", "password", "workers"} {
		if share.Flags().Lookup(name) == nil {
			t.Errorf("share flag --%s missing", name)
		}
	}
	if got := share.Flags().Lookup("depth").DefValue; got != "1" {
		t.Errorf("default depth = %s, want 1", got)
	}

	f := shareFlags{}
	if got := f.resolveWorkers(3); got != 3 {
		t.Errorf("resolveWorkers without flag = %d, want 3", got)
	}
	f.workers = 6
	if got := f.resolveWorkers(3); got != 6 {
		t.Errorf("resolveWorkers with flag = %d, want 6", got)
	}
}

func TestPromptFolder(t *testing.T) {
	folders := []models.FolderEntry{{ID: "a1", Name: "Movies"}, {ID: "b2", Name: "Books"}}

	tests := []struct {
		input  string
		wantID string
	}{
		{"2\n", "b2"},
		{"0\n", constants.RootFolderID},
		{"x\n9\n1\n", "a1"},
		{"\n1", "a1"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := promptFolder(strings.NewReader(tt.input), &out, folders)
		if err != nil {
			t.Errorf("promptFolder(%q) error: %v", tt.input, err)
			continue
		}
		if got.ID != tt.wantID {
			t.Errorf("promptFolder(%q) = %s, want %s", tt.input, got.ID, tt.wantID)
		}
		if !strings.Contains(out.String(), "2. Books") {
			t.Errorf("folder list not printed: %q", out.String())
		}
	}

	if _, err := promptFolder(strings.NewReader("7\n"), &bytes.Buffer{}, folders); err == nil {
		t.Error("expected error when input ends without a valid choice")
	}
}

func TestCollectURLs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "url.txt")
	content := "first https://pan.quark.cn/s/aaa?pwd=1234\n\nsee also https://pan.quark.cn/s/bbb\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	urls, err := collectURLs([]string{" https://pan.quark.cn/s/zzz "}, path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"https://pan.quark.cn/s/zzz",
		"https://pan.quark.cn/s/aaa?pwd=1234",
		"https://pan.quark.cn/s/bbb",
	}
	if fmt.Sprint(urls) != fmt.Sprint(want) {
		t.Errorf("collectURLs = %v, want %v", urls, want)
	}

	if _, err := collectURLs(nil, ""); err == nil {
		t.Error("expected error with no links")
	}
	if _, err := collectURLs(nil, filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDescribeError(t *testing.T) {
	capacity := &api.APIError{Op: "share.save", Code: constants.CodeCapacityLimit, Message: "capacity limit"}
	if got := describeError(fmt.Errorf("save: %w", capacity)); !strings.Contains(got, "capacity") {
		t.Errorf("describeError(capacity) = %q", got)
	}
	if got := describeError(fmt.Errorf("run: %w", traverse.ErrSustainedThrottle)); !strings.Contains(got, "share retry") {
		t.Errorf("describeError(throttle) = %q", got)
	}
	if got := describeError(api.ErrInvalidSession); got != "" {
		t.Errorf("describeError(session) = %q, want empty", got)
	}
	if got := describeError(fmt.Errorf("plain")); got != "" {
		t.Errorf("describeError(plain) = %q, want empty", got)
	}
}
