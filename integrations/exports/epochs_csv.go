package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"

	"ethpool/native/pool"
)

var csvHeader = []string{
	"epoch", "reward_amount", "stake_cutoff", "reward_due", "qualifying_stake",
	"finalized", "finalized_at", "refunded", "status",
}

// EpochsCSV builds a CSV export of the supplied epoch history and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func EpochsCSV(epochs []*pool.Epoch) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, epoch := range epochs {
		if epoch == nil {
			continue
		}
		record := []string{
			strconv.FormatUint(epoch.ID, 10),
			amount(epoch.RewardAmount),
			formatUnix(epoch.StakeCutoff),
			formatUnix(epoch.RewardDue),
			amount(epoch.QualifyingStake),
			strconv.FormatBool(epoch.Finalized),
			formatFinalized(epoch),
			strconv.FormatBool(epoch.Refunded),
			Status(epoch),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// Status classifies an epoch for reporting: "open" until its reward is
// deposited, then "paid" or "refunded".
func Status(epoch *pool.Epoch) string {
	switch {
	case epoch == nil || !epoch.Finalized:
		return "open"
	case epoch.Refunded:
		return "refunded"
	default:
		return "paid"
	}
}

func amount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func formatUnix(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func formatFinalized(epoch *pool.Epoch) string {
	if !epoch.Finalized {
		return ""
	}
	return formatUnix(epoch.FinalizedAt)
}
