package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv %s: %v", path, err)
	}
	return rows
}

func TestMACSinkWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mac.csv")
	sink, err := Open(path, KindMAC)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sink.WriteMAC(100, 3); err != nil {
		t.Fatalf("WriteMAC: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1 data row", len(rows))
	}
	if got := rows[0]; got[0] != "simulation_time" || got[1] != "collision_count" {
		t.Errorf("unexpected header: %v", got)
	}
	if got := rows[1]; got[0] != "100" || got[1] != "3" {
		t.Errorf("unexpected row: %v", got)
	}
}

func TestRoutingSinkWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.csv")
	sink, err := Open(path, KindRouting)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sink.WriteRouting(5, 20, 2); err != nil {
		t.Fatalf("WriteRouting: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1 data row", len(rows))
	}
	if got := rows[1]; got[0] != "5" || got[1] != "20" || got[2] != "2" {
		t.Errorf("unexpected row: %v", got)
	}
}

func TestMismatchedKindIsSilentNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mac-only.csv")
	sink, err := Open(path, KindMAC)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sink.WriteRouting(1, 2, 3); err != nil {
		t.Fatalf("WriteRouting on a MAC sink should be a silent no-op, got error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want only the header (mismatched write should not append)", len(rows))
	}
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if _, err := Open(path, Kind(99)); err == nil {
		t.Fatal("expected an error for an unrecognised Kind")
	}
}
