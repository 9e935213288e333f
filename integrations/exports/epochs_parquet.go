package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"ethpool/native/pool"
)

// Amounts stay decimal strings; wei values overflow every parquet integer type.
type epochRow struct {
	Epoch           int64  `parquet:"name=epoch, type=INT64"`
	RewardAmount    string `parquet:"name=reward_amount_wei, type=BYTE_ARRAY, convertedtype=UTF8"`
	StakeCutoff     int64  `parquet:"name=stake_cutoff, type=INT64"`
	RewardDue       int64  `parquet:"name=reward_due, type=INT64"`
	QualifyingStake string `parquet:"name=qualifying_stake_wei, type=BYTE_ARRAY, convertedtype=UTF8"`
	Finalized       bool   `parquet:"name=finalized, type=BOOLEAN"`
	FinalizedAt     string `parquet:"name=finalized_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	Refunded        bool   `parquet:"name=refunded, type=BOOLEAN"`
	Status          string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// EpochsParquet builds a snappy-compressed parquet export of the supplied
// epoch history and returns the serialised payload alongside a checksum.
func EpochsParquet(epochs []*pool.Epoch) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(buffer), new(epochRow), 1)
	if err != nil {
		return nil, "", fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, epoch := range epochs {
		if epoch == nil {
			continue
		}
		row := &epochRow{
			Epoch:           int64(epoch.ID),
			RewardAmount:    amount(epoch.RewardAmount),
			StakeCutoff:     epoch.StakeCutoff,
			RewardDue:       epoch.RewardDue,
			QualifyingStake: amount(epoch.QualifyingStake),
			Finalized:       epoch.Finalized,
			FinalizedAt:     formatFinalized(epoch),
			Refunded:        epoch.Refunded,
			Status:          Status(epoch),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, "", fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, "", fmt.Errorf("exports: parquet flush: %w", err)
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
