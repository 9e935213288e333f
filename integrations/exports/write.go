package exports

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ethpool/native/pool"
)

// Format selects the export encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts "csv", "jsonl" or "parquet" in any case.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSONL, "json":
		return FormatJSONL, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Encode renders epochs in the given format.
func Encode(format Format, epochs []*pool.Epoch) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		return EpochsCSV(epochs)
	case FormatJSONL:
		return EpochsJSONL(epochs)
	case FormatParquet:
		return EpochsParquet(epochs)
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteFile encodes epochs into dir/name.<format> and writes the checksum to
// a sibling .sha256 file in sha256sum layout. It returns the data path and
// the checksum.
func WriteFile(dir, name string, format Format, epochs []*pool.Epoch) (string, string, error) {
	data, checksum, err := Encode(format, epochs)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create export dir: %w", err)
	}
	file := name + "." + string(format)
	path := filepath.Join(dir, file)
	if err := writeAtomic(path, data); err != nil {
		return "", "", err
	}
	sum := []byte(checksum + "  " + file + "\n")
	if err := writeAtomic(path+".sha256", sum); err != nil {
		return "", "", err
	}
	return path, checksum, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
