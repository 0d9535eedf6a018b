package bench

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStoreRoundtrip(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "bench.db"))
	if err != nil {
		t.Fatal(err)
	}

	results := []Result{
		{Engine: "native", Preset: "tiny", Input: "a.pdf", InputSize: 1000, OutputSize: 400, Elapsed: 250 * time.Millisecond, Success: true},
		{Engine: "gs", Preset: "tiny", Input: "a.pdf", InputSize: 1000, Err: "gs not found"},
	}
	id, err := store.SaveRun(results)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("run id not assigned")
	}

	runs, err := store.Runs(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Fatalf("runs = %+v", runs)
	}
	stored := runs[0].Results
	if len(stored) != 2 {
		t.Fatalf("results = %+v", stored)
	}
	if stored[0].Engine != "native" || stored[0].ElapsedMS != 250 || !stored[0].Success {
		t.Fatalf("row = %+v", stored[0])
	}
	if stored[1].Err != "gs not found" || stored[1].Success {
		t.Fatalf("row = %+v", stored[1])
	}
}
