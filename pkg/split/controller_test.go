package split

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eunmann/tarsplit/internal/logctx"
	"github.com/eunmann/tarsplit/pkg/entry"
	"github.com/eunmann/tarsplit/pkg/sink"
)

// memDestination keeps outputs in memory.
type memDestination struct {
	mu    sync.Mutex
	files map[string]*bytes.Buffer
}

func newMemDestination() *memDestination {
	return &memDestination{files: map[string]*bytes.Buffer{}}
}

func (m *memDestination) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok, nil
}

func (m *memDestination) Create(_ context.Context, name string, overwrite bool) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; ok && !overwrite {
		return nil, fmt.Errorf("create %s: %w", name, fs.ErrExist)
	}
	buf := &bytes.Buffer{}
	m.files[name] = buf
	return nopWriteCloser{buf}, nil
}

func (m *memDestination) get(name string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.files[name]; ok {
		return b.Bytes()
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func testConfig(limit int64) Config {
	return Config{MaxSplitBytes: limit, OutputPrefix: "out", Manifest: true}
}

func files(pairs ...any) []entry.Spec {
	var specs []entry.Spec
	for i := 0; i < len(pairs); i += 2 {
		specs = append(specs, entry.Spec{
			Name:    pairs[i].(string),
			Content: bytes.Repeat([]byte{'x'}, pairs[i+1].(int)),
		})
	}
	return specs
}

func run(t *testing.T, cfg Config, dest *memDestination, specs ...entry.Spec) (Result, error) {
	t.Helper()
	factory := sink.NewFactory(dest, cfg.SinkOptions())
	return Run(context.Background(), entry.NewSliceSource(specs...), cfg, factory)
}

func splitNames(res Result) [][]string {
	var out [][]string
	for _, s := range res.Splits {
		var names []string
		for _, r := range s.Entries {
			names = append(names, r.Name)
		}
		out = append(out, names)
	}
	return out
}

func readArchive(t *testing.T, data []byte) map[string]int {
	t.Helper()
	got := map[string]int{}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return got
		}
		if err != nil {
			t.Fatalf("read tar: %v", err)
		}
		n, err := io.Copy(io.Discard, tr)
		if err != nil {
			t.Fatal(err)
		}
		got[hdr.Name] = int(n)
	}
}

func TestRun_EachEntryRollsOver(t *testing.T) {
	dest := newMemDestination()
	res, err := run(t, testConfig(200), dest, files("A", 100, "B", 150, "C", 80)...)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := splitNames(res)
	want := [][]string{{"A"}, {"B"}, {"C"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("splits = %v, want %v", got, want)
	}

	wantSizes := []int64{100, 150, 80}
	for i, s := range res.Splits {
		if s.Index != i {
			t.Errorf("split %d has index %d", i, s.Index)
		}
		if s.RunningSize != wantSizes[i] {
			t.Errorf("split %d running size = %d, want %d", i, s.RunningSize, wantSizes[i])
		}
		manifest := string(dest.get(fmt.Sprintf("out-%d.manifest", i)))
		if manifest != want[i][0]+"\n" {
			t.Errorf("manifest %d = %q", i, manifest)
		}
	}
}

func TestRun_SingleSplit(t *testing.T) {
	dest := newMemDestination()
	res, err := run(t, testConfig(200), dest, files("A", 50, "B", 50, "C", 50)...)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Splits) != 1 {
		t.Fatalf("expected 1 split, got %d", len(res.Splits))
	}
	if res.Splits[0].RunningSize != 150 {
		t.Errorf("running size = %d, want 150", res.Splits[0].RunningSize)
	}
	if dest.get("out-1.tar") != nil {
		t.Error("unexpected second split")
	}

	contents := readArchive(t, dest.get("out-0.tar"))
	if len(contents) != 3 || contents["A"] != 50 || contents["C"] != 50 {
		t.Errorf("archive contents = %v", contents)
	}
}

func TestRun_EntryTooLarge(t *testing.T) {
	dest := newMemDestination()
	_, err := run(t, testConfig(200), dest, files("D", 500)...)

	var tooLarge *EntryTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected EntryTooLargeError, got %v", err)
	}
	if tooLarge.Name != "D" || tooLarge.Size != 500 || tooLarge.Limit != 200 {
		t.Errorf("error = %+v", tooLarge)
	}
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Error("expected errors.Is(err, ErrEntryTooLarge)")
	}
	if !strings.Contains(err.Error(), `"D"`) || !strings.Contains(err.Error(), "500") {
		t.Errorf("message should name entry and size: %v", err)
	}
	if strings.Contains(string(dest.get("out-0.manifest")), "D") {
		t.Error("rejected entry must not be listed")
	}
}

func TestRun_EntryEqualToLimitIsTooLarge(t *testing.T) {
	dest := newMemDestination()
	res, err := run(t, testConfig(200), dest, files("A", 10, "B", 200, "C", 10)...)
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("expected ErrEntryTooLarge, got %v", err)
	}
	if len(res.Splits) != 0 {
		t.Errorf("no split should have been finalized, got %d", len(res.Splits))
	}
}

func TestRun_TooLargeAfterRollover(t *testing.T) {
	dest := newMemDestination()
	res, err := run(t, testConfig(100), dest, files("A", 60, "B", 60, "C", 150)...)
	if !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("expected ErrEntryTooLarge, got %v", err)
	}
	if len(res.Splits) != 1 || res.Splits[0].Entries[0].Name != "A" {
		t.Fatalf("finalized splits = %v", splitNames(res))
	}
	if contents := readArchive(t, dest.get("out-0.tar")); contents["A"] != 60 {
		t.Errorf("finalized split 0 should hold A, got %v", contents)
	}
}

func TestRun_DirectoriesAndEmptyFilesNeverRollOver(t *testing.T) {
	dest := newMemDestination()
	specs := []entry.Spec{
		{Name: "a/", Kind: entry.KindDir},
		{Name: "a/one", Content: bytes.Repeat([]byte{1}, 99)},
		{Name: "a/b/", Kind: entry.KindDir},
		{Name: "a/empty"},
		{Name: "a/link", Kind: entry.KindOther},
		{Name: "a/two", Content: []byte{2}},
	}
	res, err := run(t, testConfig(100), dest, specs...)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := splitNames(res)
	want := [][]string{{"a/", "a/one", "a/b/", "a/empty", "a/link"}, {"a/two"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("splits = %v, want %v", got, want)
	}
	manifest := string(dest.get("out-0.manifest"))
	if strings.Count(manifest, "\n") != 5 {
		t.Errorf("manifest should list every entry: %q", manifest)
	}
}

func TestRun_EmptySource(t *testing.T) {
	dest := newMemDestination()
	res, err := run(t, testConfig(100), dest)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Splits) != 1 || len(res.Splits[0].Entries) != 0 {
		t.Fatalf("expected one empty split, got %v", splitNames(res))
	}
	if contents := readArchive(t, dest.get("out-0.tar")); len(contents) != 0 {
		t.Errorf("expected empty archive, got %v", contents)
	}
}

func TestRun_OrderAndBoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		limit := int64(50 + rng.Intn(500))
		n := rng.Intn(40)
		var specs []entry.Spec
		var sizes []int64
		for i := 0; i < n; i++ {
			size := rng.Int63n(limit)
			specs = append(specs, entry.Spec{Name: fmt.Sprintf("f%03d", i), Size: size})
			sizes = append(sizes, size)
		}

		cfg := testConfig(limit)
		cfg.Manifest = false
		res, err := run(t, cfg, newMemDestination(), specs...)
		if err != nil {
			t.Fatalf("trial %d: Run: %v", trial, err)
		}

		var flat []string
		for _, s := range res.Splits {
			var running int64
			for j, r := range s.Entries {
				if j > 0 && running+r.Size >= limit {
					t.Errorf("trial %d: split %d entry %s admitted over limit", trial, s.Index, r.Name)
				}
				running += r.Size
				flat = append(flat, r.Name)
			}
			if s.RunningSize >= limit {
				t.Errorf("trial %d: split %d running size %d >= %d", trial, s.Index, s.RunningSize, limit)
			}
		}
		for i := range specs {
			if i >= len(flat) || flat[i] != specs[i].Name {
				t.Fatalf("trial %d: order mismatch at %d", trial, i)
			}
		}
		if len(flat) != len(specs) {
			t.Fatalf("trial %d: %d entries out, %d in", trial, len(flat), len(specs))
		}

		plan, err := Plan(sizes, nil, limit)
		if err != nil {
			t.Fatalf("trial %d: Plan: %v", trial, err)
		}
		if len(plan) != len(res.Splits) {
			t.Fatalf("trial %d: plan has %d splits, run %d", trial, len(plan), len(res.Splits))
		}
		for i, p := range plan {
			if p.Count != len(res.Splits[i].Entries) || p.Size != res.Splits[i].RunningSize {
				t.Errorf("trial %d: plan split %d = %+v, run = %d entries %d bytes",
					trial, i, p, len(res.Splits[i].Entries), res.Splits[i].RunningSize)
			}
		}
	}
}

func TestRun_ReplayIsDeterministic(t *testing.T) {
	specs := files("a", 30, "b", 70, "c", 10, "d", 90, "e", 5, "f", 99)
	first, err := run(t, testConfig(100), newMemDestination(), specs...)
	if err != nil {
		t.Fatal(err)
	}
	second, err := run(t, testConfig(100), newMemDestination(), specs...)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(splitNames(first)) != fmt.Sprint(splitNames(second)) {
		t.Errorf("replay differs: %v vs %v", splitNames(first), splitNames(second))
	}
	for i := range first.Splits {
		if first.Splits[i].Digest != second.Splits[i].Digest {
			t.Errorf("split %d digest differs between identical runs", i)
		}
	}
}

func TestRun_RoundTripPerSplit(t *testing.T) {
	dest := newMemDestination()
	specs := []entry.Spec{
		{Name: "root/", Kind: entry.KindDir},
		{Name: "root/a.txt", Content: []byte("alpha")},
		{Name: "root/b.txt", Content: []byte(strings.Repeat("b", 40))},
		{Name: "root/c.txt", Content: []byte(strings.Repeat("c", 30))},
	}
	res, err := run(t, testConfig(50), dest, specs...)
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range res.Splits {
		contents := readArchive(t, dest.get(s.Archive))
		if len(contents) != len(s.Entries) {
			t.Errorf("%s: %d entries in archive, %d committed", s.Archive, len(contents), len(s.Entries))
		}
		for _, r := range s.Entries {
			size, ok := contents[r.Name]
			if !ok || int64(size) != r.Size {
				t.Errorf("%s: entry %s missing or wrong size", s.Archive, r.Name)
			}
		}
	}
}

func TestNewController_ConflictOnSplitZero(t *testing.T) {
	dest := newMemDestination()
	dest.files["out-0.tar"] = bytes.NewBufferString("keep")

	cfg := testConfig(100)
	_, err := NewController(context.Background(), cfg, sink.NewFactory(dest, cfg.SinkOptions()))

	var conflict *DestinationConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected DestinationConflictError, got %v", err)
	}
	if conflict.Index != 0 || conflict.Path != "out-0.tar" {
		t.Errorf("conflict = %+v", conflict)
	}
	if string(dest.get("out-0.tar")) != "keep" {
		t.Error("conflicting output was modified")
	}
	if dest.get("out-0.manifest") != nil {
		t.Error("no outputs should be created on conflict")
	}
}

func TestRun_ConflictOnRollover(t *testing.T) {
	dest := newMemDestination()
	dest.files["out-1.manifest"] = bytes.NewBufferString("keep\n")

	res, err := run(t, testConfig(100), dest, files("A", 60, "B", 60)...)
	if !errors.Is(err, ErrDestinationConflict) {
		t.Fatalf("expected ErrDestinationConflict, got %v", err)
	}
	var conflict *DestinationConflictError
	errors.As(err, &conflict)
	if conflict.Index != 1 || conflict.Path != "out-1.manifest" {
		t.Errorf("conflict = %+v", conflict)
	}
	if string(dest.get("out-1.manifest")) != "keep\n" {
		t.Error("conflicting manifest was modified")
	}
	if dest.get("out-1.tar") != nil {
		t.Error("split 1 archive should not be created")
	}
	if len(res.Splits) != 1 {
		t.Errorf("split 0 should be finalized, got %d splits", len(res.Splits))
	}
}

func TestRun_OverwriteExisting(t *testing.T) {
	dest := newMemDestination()
	dest.files["out-0.tar"] = bytes.NewBufferString("stale")

	cfg := testConfig(100)
	cfg.OverwriteExisting = true
	if _, err := run(t, cfg, dest, files("A", 10)...); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if contents := readArchive(t, dest.get("out-0.tar")); contents["A"] != 10 {
		t.Errorf("archive not overwritten: %v", contents)
	}
}

func TestRun_CompressedNaming(t *testing.T) {
	dest := newMemDestination()
	cfg := testConfig(100)
	cfg.Compress = true
	res, err := run(t, cfg, dest, files("A", 60, "B", 60)...)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range res.Splits {
		want := fmt.Sprintf("out-%d.tar.gz", i)
		if s.Archive != want || dest.get(want) == nil {
			t.Errorf("split %d archive = %s, want %s", i, s.Archive, want)
		}
	}
}

func TestController_NotRunningAfterFinalize(t *testing.T) {
	dest := newMemDestination()
	cfg := testConfig(100)
	ctx := context.Background()
	c, err := NewController(ctx, cfg, sink.NewFactory(dest, cfg.SinkOptions()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Finalize(ctx); err != nil {
		t.Fatal(err)
	}

	src := entry.NewSliceSource(files("late", 1)...)
	e, _ := src.Next(ctx)
	if err := c.Accept(ctx, e); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Accept after Finalize: expected ErrNotRunning, got %v", err)
	}
	if _, err := c.Finalize(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Finalize: expected ErrNotRunning, got %v", err)
	}
}

func TestController_InvalidConfig(t *testing.T) {
	_, err := NewController(context.Background(), Config{OutputPrefix: "out"}, sink.NewFactory(newMemDestination(), sink.Options{}))
	if !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

type failingSource struct {
	inner entry.Source
	after int
	err   error
}

func (f *failingSource) Next(ctx context.Context) (entry.Entry, error) {
	if f.after == 0 {
		return entry.Entry{}, f.err
	}
	f.after--
	return f.inner.Next(ctx)
}

func (f *failingSource) Close() error { return nil }

func TestRun_SourceErrorAborts(t *testing.T) {
	dest := newMemDestination()
	cfg := testConfig(100)
	boom := errors.New("truncated archive")
	src := &failingSource{inner: entry.NewSliceSource(files("A", 10)...), after: 1, err: boom}

	res, err := Run(context.Background(), src, cfg, sink.NewFactory(dest, cfg.SinkOptions()))
	if !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
	if len(res.Splits) != 0 {
		t.Errorf("in-progress split must not be reported as finalized")
	}
}

func TestRun_VerboseLogging(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(prev)

	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), zerolog.New(&buf).Level(zerolog.DebugLevel))

	dest := newMemDestination()
	cfg := testConfig(100)
	cfg.Verbose = true
	_, err := Run(ctx, entry.NewSliceSource(files("A", 60, "B", 60)...), cfg, sink.NewFactory(dest, cfg.SinkOptions()))
	if err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		`"event":"split_opened"`,
		`"event":"entry_committed"`,
		`"event":"split_rollover"`,
		`"event":"split_finalized"`,
		`"event":"phase_completed"`,
		`"split_index":1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in log output", want)
		}
	}
}
