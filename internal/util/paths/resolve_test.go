package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestResolveDir(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	got, err := ResolveDir(base)
	if err != nil || got != base {
		t.Errorf("ResolveDir(existing) = %q, %v", got, err)
	}

	missing := filepath.Join(base, "a", "b")
	got, err = ResolveDir(missing)
	if err != nil || got != missing {
		t.Errorf("ResolveDir(missing) = %q, %v; want %q", got, err, missing)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		got, err := ResolveDir("~/does-not-exist-mixtape")
		if err != nil || filepath.Base(got) != "does-not-exist-mixtape" || !filepath.IsAbs(got) {
			t.Errorf("ResolveDir(~) = %q, %v (home %s)", got, err, home)
		}
	}
}

func TestResolveDirFollowsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(base, "real")
	if err := os.Mkdir(target, 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveDir(filepath.Join(link, "sub"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(target, "sub"); got != want {
		t.Errorf("ResolveDir() = %q, want %q", got, want)
	}
}
