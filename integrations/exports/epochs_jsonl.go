package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"ethpool/native/pool"
)

type epochLine struct {
	Epoch           uint64 `json:"epoch"`
	RewardAmount    string `json:"reward_amount"`
	StakeCutoff     int64  `json:"stake_cutoff"`
	RewardDue       int64  `json:"reward_due"`
	QualifyingStake string `json:"qualifying_stake"`
	Finalized       bool   `json:"finalized"`
	FinalizedAt     int64  `json:"finalized_at,omitempty"`
	Refunded        bool   `json:"refunded"`
	Status          string `json:"status"`
}

// EpochsJSONL builds a JSON Lines export of the supplied epoch history and
// returns the serialised payload alongside a checksum.
func EpochsJSONL(epochs []*pool.Epoch) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, epoch := range epochs {
		if epoch == nil {
			continue
		}
		line := epochLine{
			Epoch:           epoch.ID,
			RewardAmount:    amount(epoch.RewardAmount),
			StakeCutoff:     epoch.StakeCutoff,
			RewardDue:       epoch.RewardDue,
			QualifyingStake: amount(epoch.QualifyingStake),
			Finalized:       epoch.Finalized,
			Refunded:        epoch.Refunded,
			Status:          Status(epoch),
		}
		if epoch.Finalized {
			line.FinalizedAt = epoch.FinalizedAt
		}
		if err := encoder.Encode(line); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
