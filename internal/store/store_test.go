package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{"sqlite": sq, "memory": NewMemStore()}
}

func TestStore_SaveGetList(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			runs := []*Run{
				{CaseID: 1, CaseName: "Login", RunDir: "/r/1", Model: "thumb32", CreatedAt: base,
					ActionCoverage: 66.67, ExactMatch: 33.3, PageCoverage: NotRun, Report: []byte(`{"case_id":1}`)},
				{CaseID: 1, RunDir: "/r/2", CreatedAt: base.Add(time.Hour), ActionCoverage: 100, ExactMatch: 100, PageCoverage: 50},
				{CaseID: 2, RunDir: "/r/3", CreatedAt: base.Add(2 * time.Hour)},
			}
			var ids []string
			for _, r := range runs {
				id, err := s.SaveRun(r)
				if err != nil {
					t.Fatalf("SaveRun: %v", err)
				}
				if id == "" || id != r.ID {
					t.Fatalf("id = %q, run.ID = %q", id, r.ID)
				}
				ids = append(ids, id)
			}

			got, err := s.GetRun(ids[0])
			if err != nil {
				t.Fatalf("GetRun: %v", err)
			}
			want := *runs[0]
			if diff := cmp.Diff(&want, got); diff != "" {
				t.Errorf("GetRun (-want +got):\n%s", diff)
			}

			all, err := s.ListRuns(0, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 3 || all[0].RunDir != "/r/3" || all[2].RunDir != "/r/1" {
				t.Errorf("ListRuns(all) order = %v", runDirs(all))
			}
			case1, err := s.ListRuns(1, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(case1) != 1 || case1[0].RunDir != "/r/2" {
				t.Errorf("ListRuns(1, 1) = %v", runDirs(case1))
			}
			none, err := s.ListRuns(9, 0)
			if err != nil || len(none) != 0 {
				t.Errorf("ListRuns(9) = %v, %v", runDirs(none), err)
			}

			if _, err := s.GetRun("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetRun(missing) err = %v, want ErrNotFound", err)
			}
			if _, err := s.SaveRun(nil); err == nil {
				t.Error("SaveRun(nil) should fail")
			}
		})
	}
}

func TestStore_SaveReplacesByID(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := &Run{ID: "fixed", CaseID: 1, RunDir: "/r", ActionCoverage: 10}
			if _, err := s.SaveRun(r); err != nil {
				t.Fatal(err)
			}
			r.ActionCoverage = 90
			if _, err := s.SaveRun(r); err != nil {
				t.Fatal(err)
			}
			got, err := s.GetRun("fixed")
			if err != nil {
				t.Fatal(err)
			}
			if got.ActionCoverage != 90 {
				t.Errorf("ActionCoverage = %v, want 90", got.ActionCoverage)
			}
			if all, _ := s.ListRuns(0, 0); len(all) != 1 {
				t.Errorf("runs = %d, want 1", len(all))
			}
		})
	}
}

func TestSqlStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.SaveRun(&Run{CaseID: 4, RunDir: "/r", Report: []byte(`{"x":1}`)})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetRun(id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Report) != `{"x":1}` {
		t.Errorf("report = %s", got.Report)
	}
}

func TestSqlStore_MigratesV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(schemaV1); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersionV1); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO runs (id, case_id, run_dir, created_at, action_coverage, exact_match, page_coverage)
		VALUES ('old', 1, '/r', '2026-01-01T00:00:00.000000000Z', 50, 25, -1)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open v1 db: %v", err)
	}
	defer s.Close()
	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version").Scan(&v); err != nil || v != schemaVersionV2 {
		t.Errorf("schema version = %d, %v", v, err)
	}
	got, err := s.GetRun("old")
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "" || got.ActionCoverage != 50 || got.PageCoverage != NotRun {
		t.Errorf("migrated run = %+v", got)
	}
}

func runDirs(rs []*Run) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.RunDir
	}
	return out
}
