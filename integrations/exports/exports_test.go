package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"ethpool/native/pool"
)

func sampleEpochs() []*pool.Epoch {
	return []*pool.Epoch{
		{ID: 0, RewardAmount: big.NewInt(1000), StakeCutoff: 1700000000, RewardDue: 1700604800, QualifyingStake: big.NewInt(600), Finalized: true, FinalizedAt: 1700604800},
		{ID: 1, RewardAmount: big.NewInt(50), StakeCutoff: 1701000000, RewardDue: 1701604800, QualifyingStake: big.NewInt(0), Finalized: true, FinalizedAt: 1701604800, Refunded: true},
		nil,
		{ID: 2, RewardAmount: big.NewInt(75), StakeCutoff: 1702000000, RewardDue: 1702604800, QualifyingStake: big.NewInt(10)},
	}
}

func TestEpochsCSV(t *testing.T) {
	data, checksum, err := EpochsCSV(sampleEpochs())
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	sum := sha256.Sum256(data)
	if checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum does not match payload")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and three rows, got %d", len(lines))
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,1000,2023-11-14T22:13:20Z,") || !strings.HasSuffix(lines[1], ",paid") {
		t.Fatalf("unexpected first row %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], ",true,refunded") {
		t.Fatalf("unexpected refunded row %q", lines[2])
	}
	if !strings.HasSuffix(lines[3], ",false,,false,open") {
		t.Fatalf("unexpected open row %q", lines[3])
	}
}

func TestEpochsJSONL(t *testing.T) {
	data, checksum, err := EpochsJSONL(sampleEpochs())
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected three lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"epoch":0`) || !strings.Contains(lines[0], `"status":"paid"`) {
		t.Fatalf("unexpected payload: %s", lines[0])
	}
	if strings.Contains(lines[2], "finalized_at") {
		t.Fatalf("open epochs must omit finalized_at: %s", lines[2])
	}
}

func TestEpochsParquet(t *testing.T) {
	data, checksum, err := EpochsParquet(sampleEpochs())
	if err != nil {
		t.Fatalf("parquet: %v", err)
	}
	sum := sha256.Sum256(data)
	if checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum does not match payload")
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatalf("payload is not framed as parquet")
	}

	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(data), new(epochRow), 1)
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	defer pr.ReadStop()
	if pr.GetNumRows() != 3 {
		t.Fatalf("expected three rows, got %d", pr.GetNumRows())
	}
	rows := make([]epochRow, pr.GetNumRows())
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if rows[0].Epoch != 0 || rows[0].RewardAmount != "1000" || rows[0].Status != "paid" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if !rows[1].Refunded || rows[1].Status != "refunded" {
		t.Fatalf("unexpected refunded row %+v", rows[1])
	}
	if rows[2].Epoch != 2 || rows[2].FinalizedAt != "" || rows[2].Status != "open" {
		t.Fatalf("unexpected open row %+v", rows[2])
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	path, checksum, err := WriteFile(dir, "epochs-0-2", FormatCSV, sampleEpochs())
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(path) != "epochs-0-2.csv" {
		t.Fatalf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != checksum {
		t.Fatalf("checksum mismatch")
	}
	sidecar, err := os.ReadFile(path + ".sha256")
	if err != nil {
		t.Fatalf("read checksum: %v", err)
	}
	if string(sidecar) != checksum+"  epochs-0-2.csv\n" {
		t.Fatalf("unexpected checksum file %q", sidecar)
	}
}

func TestParseFormat(t *testing.T) {
	for raw, want := range map[string]Format{"CSV": FormatCSV, "jsonl": FormatJSONL, " json ": FormatJSONL} {
		got, err := ParseFormat(raw)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err=%v", raw, got, err)
		}
	}
	if got, err := ParseFormat("Parquet"); err != nil || got != FormatParquet {
		t.Fatalf("parquet: got %q err=%v", got, err)
	}
	if _, err := ParseFormat("xlsx"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
