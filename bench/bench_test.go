package bench

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wudi/pdfpress/engine"
)

// stubEngine copies the input, optionally truncated, without touching a real
// pipeline.
type stubEngine struct {
	name      string
	available bool
	failWith  error
	keep      float64 // fraction of input bytes to keep
	calls     int
}

func (s *stubEngine) Name() string      { return s.name }
func (s *stubEngine) IsAvailable() bool { return s.available }

func (s *stubEngine) Compress(ctx context.Context, input, output string, preset engine.Preset, onProgress engine.ProgressFunc) error {
	s.calls++
	if s.failWith != nil {
		return s.failWith
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	n := int(float64(len(data)) * s.keep)
	return os.WriteFile(output, data[:n], 0o644)
}

func benchFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.pdf")
	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunnerGrid(t *testing.T) {
	input := benchFile(t, 1000)
	eng := &stubEngine{name: "stub", available: true, keep: 0.5}

	runner := NewRunner(Config{
		Engines: []engine.Engine{eng},
		Presets: []engine.Preset{engine.PresetTiny, engine.PresetLarge},
		Files:   []string{input},
	})
	results, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || eng.calls != 2 {
		t.Fatalf("results = %d, calls = %d", len(results), eng.calls)
	}
	for _, res := range results {
		if !res.Success {
			t.Fatalf("row failed: %+v", res)
		}
		if res.Engine != "stub" || res.Input != "input.pdf" {
			t.Fatalf("row = %+v", res)
		}
		if res.InputSize != 1000 || res.OutputSize != 500 {
			t.Fatalf("sizes = %d -> %d", res.InputSize, res.OutputSize)
		}
		if got := res.Ratio(); got != 0.5 {
			t.Fatalf("ratio = %v", got)
		}
	}
}

func TestRunnerSkipsUnavailable(t *testing.T) {
	input := benchFile(t, 100)
	offline := &stubEngine{name: "offline", available: false}
	online := &stubEngine{name: "online", available: true, keep: 1}

	runner := NewRunner(Config{
		Engines: []engine.Engine{offline, online},
		Presets: []engine.Preset{engine.PresetSmall},
		Files:   []string{input},
	})
	results, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Engine != "online" {
		t.Fatalf("results = %+v", results)
	}
	if offline.calls != 0 {
		t.Fatal("unavailable engine was invoked")
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	input := benchFile(t, 100)
	eng := &stubEngine{name: "broken", available: true, failWith: errors.New("pipeline exploded")}

	runner := NewRunner(Config{
		Engines: []engine.Engine{eng},
		Presets: []engine.Preset{engine.PresetSmall},
		Files:   []string{input},
	})
	results, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	res := results[0]
	if res.Success || !strings.Contains(res.Err, "pipeline exploded") {
		t.Fatalf("row = %+v", res)
	}
	if res.Ratio() != 1 {
		t.Fatalf("failed row ratio = %v", res.Ratio())
	}
}

func TestRunnerKeepOutputs(t *testing.T) {
	input := benchFile(t, 100)
	workDir := t.TempDir()
	eng := &stubEngine{name: "stub", available: true, keep: 1}

	runner := NewRunner(Config{
		Engines:     []engine.Engine{eng},
		Presets:     []engine.Preset{engine.PresetSmall},
		Files:       []string{input},
		WorkDir:     workDir,
		KeepOutputs: true,
	})
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(workDir, "stub-small-input.pdf")); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestWriteTable(t *testing.T) {
	results := []Result{
		{Engine: "native", Preset: "tiny", Input: "a.pdf", InputSize: 2048, OutputSize: 1024, Success: true},
		{Engine: "gs", Preset: "large", Input: "b.pdf", InputSize: 100, Err: "boom"},
	}
	var buf bytes.Buffer
	if err := WriteTable(&buf, results); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ENGINE", "native", "tiny", "2.0KB", "1.0KB", "0.50", "ok", "boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		512:       "512B",
		2048:      "2.0KB",
		3 << 20:   "3.0MB",
		1<<10 - 1: "1023B",
	}
	for n, want := range cases {
		if got := formatSize(n); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", n, got, want)
		}
	}
}
