package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/usaschooldata/schooldata/internal/config"
	"github.com/usaschooldata/schooldata/internal/testutil"
	"github.com/usaschooldata/schooldata/pkg/types"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Source.Type = config.SourceLocal
	cfg.Source.Dir = testutil.SampleDataset(t)
	cfg.Years = []string{"2023-2024", "2022-2023"}
	cfg.Engine.Extensions = nil
	cfg.Search.Debounce = -1
	return cfg
}

func newSession(t *testing.T, cfg *config.Config) (*Session, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	s, err := New(context.Background(), cfg, WithLogWriter(&logs))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, &logs
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Source.Type = "carrier-pigeon"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestSession_IDAndLogs(t *testing.T) {
	s, logs := newSession(t, localConfig(t))

	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("session ID %q is not a UUID: %v", s.ID, err)
	}
	if !strings.Contains(logs.String(), s.ID) || !strings.Contains(logs.String(), "session ready") {
		t.Errorf("startup log missing session: %s", logs.String())
	}
	if s.Engine().Ready() {
		t.Error("engine should initialize lazily")
	}
}

func TestSession_LocalOnly(t *testing.T) {
	s, _ := newSession(t, localConfig(t))
	ctx := s.Context(context.Background())

	res, err := s.Resolver().Summary(ctx, testutil.DistrictAlabama, "2023-2024")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if res.Source != types.SourceLocal || res.Value.TotalEnrollment != 42 {
		t.Errorf("result = %+v", res)
	}

	entries, err := s.Searcher().Search(ctx, "lincoln", types.SearchFilters{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %+v", entries)
	}

	top := s.TopEntities(5)
	if len(top) != 1 || top[0].Entity != string(testutil.DistrictAlabama) {
		t.Errorf("top = %+v", top)
	}
	if s.Registry() == nil {
		t.Error("metrics registry should exist")
	}
}

func TestSession_RemoteUnreachableFallsBack(t *testing.T) {
	cfg := localConfig(t)
	cfg.Remote.Address = "127.0.0.1:1"
	cfg.Remote.Insecure = true
	cfg.Remote.Timeout = 500 * time.Millisecond
	s, logs := newSession(t, cfg)

	res, err := s.Resolver().Summary(s.Context(context.Background()), testutil.SchoolLincoln, "2023-2024")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if res.Source != types.SourceLocal || res.Value.TotalEnrollment != 30 {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(logs.String(), "falling back to local engine") {
		t.Errorf("fallback not logged: %s", logs.String())
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	s, _ := newSession(t, localConfig(t))
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestSession_MirrorWithDiscovery(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Source.Type = config.SourceMirror
	cfg.Source.Storage.Path = testutil.SampleDataset(t)
	cfg.DiscoverYears = true
	cfg.Engine.Extensions = nil
	s, _ := newSession(t, cfg)

	if got := s.Local().AvailableYears(); len(got) != 2 || got[0] != "2023-2024" {
		t.Fatalf("discovered years = %v", got)
	}
	res, err := s.Resolver().History(s.Context(context.Background()), testutil.SchoolLincoln)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(res.Value.Years) != 2 || res.Value.Years[0].Total != 16 || res.Value.Years[1].Total != 30 {
		t.Errorf("history = %+v", res.Value)
	}

	s.Close()
	_, logs := newSession(t, cfg)
	if !strings.Contains(logs.String(), "reusing mirrored partitions") {
		t.Errorf("restart should reuse the mirror: %s", logs.String())
	}
}
