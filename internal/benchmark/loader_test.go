package benchmark

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"droidbench/internal/logging"
	"droidbench/internal/trace"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// fixture lays out case_2 (json config), case_10 (yaml config), case_3
// (no config) and case_x (bad id).
func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write(t, filepath.Join(dir, "case_2", "config.json"),
		`{"name": "Login Flow", "description": "sign in", "apk_path": "apks/app.apk"}`)
	write(t, filepath.Join(dir, "case_2", "actions.json"),
		`[{"type":"click","next_page":"home","params":{}},{"type":"back","next_page":null,"params":{}}]`)
	write(t, filepath.Join(dir, "case_2", "screenshots", "02_settings.png"), "x")
	write(t, filepath.Join(dir, "case_2", "screenshots", "01_home.png"), "x")
	write(t, filepath.Join(dir, "case_10", "config.yaml"), "name: Checkout\napk_path: /abs/shop.apk\n")
	write(t, filepath.Join(dir, "case_10", "actions.json"), `{"broken": true}`)
	write(t, filepath.Join(dir, "case_3", "actions.json"), `[]`)
	write(t, filepath.Join(dir, "case_x", "config.json"), `{"name": "bad"}`)
	return dir
}

func TestLoader_Load(t *testing.T) {
	dir := fixture(t)
	l := NewLoader(dir, logging.Discard())
	cases, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	var ids []int
	for _, c := range cases {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]int{2, 10}, ids); diff != "" {
		t.Fatalf("case ids (-want +got):\n%s", diff)
	}

	login := cases[0]
	if login.Name != "Login Flow" || login.Description != "sign in" {
		t.Errorf("login = %+v", login)
	}
	if want := filepath.Join(dir, "apks", "app.apk"); login.APKPath != want {
		t.Errorf("apk = %q, want %q", login.APKPath, want)
	}
	if len(login.Actions) != 2 {
		t.Errorf("actions = %d, want 2", len(login.Actions))
	}
	wantShots := []string{
		filepath.Join(dir, "case_2", "screenshots", "01_home.png"),
		filepath.Join(dir, "case_2", "screenshots", "02_settings.png"),
	}
	if diff := cmp.Diff(wantShots, login.Screenshots); diff != "" {
		t.Errorf("screenshots (-want +got):\n%s", diff)
	}
	if login.ActionsPath() != filepath.Join(dir, "case_2", "actions.json") {
		t.Errorf("ActionsPath = %q", login.ActionsPath())
	}

	checkout := cases[1]
	if checkout.APKPath != "/abs/shop.apk" {
		t.Errorf("absolute apk path rewritten: %q", checkout.APKPath)
	}
	if checkout.Actions == nil || len(checkout.Actions) != 0 {
		t.Errorf("broken trace should load as empty, got %v", checkout.Actions)
	}
}

func TestLoader_LoadMissingDir(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "nope"), logging.Discard()).Load(); err == nil {
		t.Error("expected error for missing benchmark dir")
	}
}

func TestLoader_Lookups(t *testing.T) {
	l := NewLoader(fixture(t), logging.Discard())
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}
	if c, err := l.ByID(10); err != nil || c.Name != "Checkout" {
		t.Errorf("ByID(10) = %v, %v", c, err)
	}
	if _, err := l.ByID(3); !errors.Is(err, ErrCaseNotFound) {
		t.Errorf("ByID(3) err = %v, want ErrCaseNotFound", err)
	}
	if c, err := l.ByName("login flow"); err != nil || c.ID != 2 {
		t.Errorf("ByName = %v, %v", c, err)
	}
	if _, err := l.ByName("nothing"); !errors.Is(err, ErrCaseNotFound) {
		t.Errorf("ByName err = %v", err)
	}
	for _, ref := range []string{"2", "case_2", "LOGIN FLOW"} {
		if c, err := l.Lookup(ref); err != nil || c.ID != 2 {
			t.Errorf("Lookup(%q) = %v, %v", ref, c, err)
		}
	}
}

func TestCase_ScreenshotHelpers(t *testing.T) {
	c := &Case{Screenshots: []string{"/s/01_Home.png", "/s/02_settings.png"}}
	if s, ok := c.ScreenshotAt(1); !ok || s != "/s/02_settings.png" {
		t.Errorf("ScreenshotAt(1) = %q, %v", s, ok)
	}
	if _, ok := c.ScreenshotAt(2); ok {
		t.Error("ScreenshotAt out of range should fail")
	}
	if _, ok := c.ScreenshotAt(-1); ok {
		t.Error("ScreenshotAt(-1) should fail")
	}
	if s, ok := c.ScreenshotFor("home"); !ok || s != "/s/01_Home.png" {
		t.Errorf("ScreenshotFor(home) = %q, %v", s, ok)
	}
	if _, ok := c.ScreenshotFor("cart"); ok {
		t.Error("ScreenshotFor(cart) should fail")
	}
}

func TestLoader_CreateImportExportSave(t *testing.T) {
	dir := fixture(t)
	l := NewLoader(dir, logging.Discard())
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	var seq trace.Sequence
	seq.Append("click", "home", nil)
	seq.Append("swipe", "feed", trace.Params{"dir": "up"})
	seqPath := filepath.Join(src, "shop_run.v2.json")
	if err := seq.SaveFile(seqPath); err != nil {
		t.Fatal(err)
	}
	write(t, filepath.Join(src, "shots", "feed.png"), "img")

	c, err := l.Import(seqPath, "", "imported", filepath.Join(src, "shots"))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if c.ID != 11 || c.Name != "shop_run" {
		t.Errorf("imported id=%d name=%q, want 11 shop_run", c.ID, c.Name)
	}
	if len(c.Screenshots) != 1 {
		t.Errorf("screenshots = %v", c.Screenshots)
	}

	empty := filepath.Join(src, "empty.json")
	write(t, empty, "[]")
	if _, err := l.Import(empty, "", "", ""); err == nil {
		t.Error("importing an empty trace should fail")
	}

	out := filepath.Join(t.TempDir(), "exported.json")
	if err := l.Export(11, out); err != nil {
		t.Fatalf("Export: %v", err)
	}
	back, err := trace.LoadFile(out)
	if err != nil || len(back) != 2 || !back[1].Equal(seq[1]) {
		t.Errorf("exported trace = %v, %v", back, err)
	}
	if err := l.Export(99, out); !errors.Is(err, ErrCaseNotFound) {
		t.Errorf("Export(99) err = %v", err)
	}

	if err := l.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded := NewLoader(dir, logging.Discard())
	if _, err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	got, err := reloaded.ByID(11)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "shop_run" || got.Description != "imported" || len(got.Actions) != 2 {
		t.Errorf("reloaded = %+v", got)
	}
	if want := []string{filepath.Join(dir, "case_11", "screenshots", "feed.png")}; !cmp.Equal(want, got.Screenshots) {
		t.Errorf("screenshots = %v, want %v", got.Screenshots, want)
	}
	login, _ := reloaded.ByID(2)
	if login.APKPath != filepath.Join(dir, "apks", "app.apk") {
		t.Errorf("apk path after save = %q", login.APKPath)
	}
}

func TestLoader_CreateStartsAtOne(t *testing.T) {
	l := NewLoader(t.TempDir(), logging.Discard())
	if c := l.Create("first", "", ""); c.ID != 1 {
		t.Errorf("first id = %d", c.ID)
	}
	if c := l.Create("second", "", ""); c.ID != 2 {
		t.Errorf("second id = %d", c.ID)
	}
}
