package ingestion

import (
	"time"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/ethereum"
)

// ParseLiveMergeLog decodes a MassUpdate log delivered over a
// subscription. Subscription logs carry no timestamp, so the event is
// stamped with observedAt; block timestamps land on the next full sync.
func ParseLiveMergeLog(n ethereum.LogNotification, observedAt time.Time) (domain.MergeEvent, error) {
	raw := ethereum.RawLog{
		Address:         n.Address,
		Topics:          n.Topics,
		Data:            n.Data,
		BlockNumber:     n.BlockNumber,
		TransactionHash: n.TransactionHash,
		LogIndex:        n.LogIndex,
		TimeStamp:       "0x0",
	}
	ev, err := parseMergeLog(raw)
	if err != nil {
		return domain.MergeEvent{}, err
	}
	ev.Timestamp = observedAt.Unix()
	return ev, nil
}
