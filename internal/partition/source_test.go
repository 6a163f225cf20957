package partition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/usaschooldata/schooldata/internal/storage"
	"github.com/usaschooldata/schooldata/pkg/types"
)

func TestHTTPSource_Locations(t *testing.T) {
	src := NewHTTPSource("")
	locs, err := src.Locations(context.Background(), []string{Locator{Prefix: "01", Year: "2023-2024"}.ObjectKey()})
	if err != nil {
		t.Fatalf("Locations failed: %v", err)
	}
	want := "https://data.usaschooldata.com/membership/school_year=2023-2024/state_leaid=01/data_0.parquet"
	if locs[0] != want {
		t.Errorf("got %s, want %s", locs[0], want)
	}

	trimmed := NewHTTPSource("http://mirror.local/")
	locs, _ = trimmed.Locations(context.Background(), []string{DirectoryKey})
	if locs[0] != "http://mirror.local/directory.parquet" {
		t.Errorf("got %s", locs[0])
	}
}

func TestLocalSource_Locations(t *testing.T) {
	dir := t.TempDir()
	src := &LocalSource{Dir: dir}
	locs, err := src.Locations(context.Background(), []string{DirectoryKey})
	if err != nil {
		t.Fatalf("Locations failed: %v", err)
	}
	if locs[0] != filepath.ToSlash(filepath.Join(dir, DirectoryKey)) {
		t.Errorf("got %s", locs[0])
	}
	if _, err := src.Locations(context.Background(), []string{"../escape"}); err == nil {
		t.Error("expected traversal to be rejected")
	}
}

func mirrorFixture(t *testing.T, keys ...string) *MirrorSource {
	t.Helper()
	base := t.TempDir()
	for _, k := range keys {
		p := filepath.Join(base, filepath.FromSlash(k))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewLocalStorage(base)
	if err != nil {
		t.Fatal(err)
	}
	return NewMirrorSource(storage.NewFetcher(store, t.TempDir(), nil, 2))
}

func TestMirrorSource_Locations(t *testing.T) {
	key := Locator{Prefix: "01", Year: "2023-2024"}.ObjectKey()
	src := mirrorFixture(t, key)
	locs, err := src.Locations(context.Background(), []string{key})
	if err != nil {
		t.Fatalf("Locations failed: %v", err)
	}
	if filepath.Base(filepath.Dir(locs[0])) != "state_leaid=01" {
		t.Errorf("hive layout not preserved: %s", locs[0])
	}
}

func TestMirrorSource_MissingPartition(t *testing.T) {
	src := mirrorFixture(t, Locator{Prefix: "01", Year: "2023-2024"}.ObjectKey())
	missing := Locator{Prefix: "01", Year: "2024-2025"}.ObjectKey()

	_, err := src.Locations(context.Background(), []string{missing})
	var me *MissingError
	if !errors.As(err, &me) {
		t.Fatalf("expected MissingError, got %v", err)
	}
	if me.Key != missing || YearOfKey(me.Key) != "2024-2025" {
		t.Errorf("unexpected key %s", me.Key)
	}
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Error("MissingError should wrap ErrObjectNotFound")
	}
}

func TestDiscoverYears(t *testing.T) {
	base := t.TempDir()
	for _, y := range []types.SchoolYear{"2021-2022", "2023-2024", "2022-2023"} {
		for _, prefix := range []string{"01", "06"} {
			p := filepath.Join(base, filepath.FromSlash(Locator{Prefix: prefix, Year: y}.ObjectKey()))
			if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(p, nil, 0644); err != nil {
				t.Fatal(err)
			}
		}
	}
	store, err := storage.NewLocalStorage(base)
	if err != nil {
		t.Fatal(err)
	}

	years, err := DiscoverYears(context.Background(), store)
	if err != nil {
		t.Fatalf("DiscoverYears failed: %v", err)
	}
	want := []types.SchoolYear{"2023-2024", "2022-2023", "2021-2022"}
	if len(years) != len(want) {
		t.Fatalf("got %v, want %v", years, want)
	}
	for i := range want {
		if years[i] != want[i] {
			t.Fatalf("got %v, want %v", years, want)
		}
	}
}
