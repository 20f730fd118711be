package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/ethereum"
)

// LogSource fetches one page of historical logs. Implemented by
// ethereum.LogClient; stubbed in tests.
type LogSource interface {
	GetLogs(ctx context.Context, q ethereum.LogQuery) ([]ethereum.RawLog, error)
}

// Scanner pulls merge and custodial transfer events from the log
// provider, page by page, and normalizes them into domain events.
type Scanner struct {
	source    LogSource
	params    domain.CollectionParams
	pageDelay time.Duration
	logger    *log.Logger
}

// ScannerOptions contains configuration for creating a Scanner.
type ScannerOptions struct {
	Source LogSource
	Params domain.CollectionParams
	// PageDelay is the pause between page fetches, to respect provider
	// rate limits.
	PageDelay time.Duration
	Logger    *log.Logger
}

// NewScanner creates an event scanner.
func NewScanner(opts ScannerOptions) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Scanner{
		source:    opts.Source,
		params:    opts.Params,
		pageDelay: opts.PageDelay,
		logger:    logger,
	}
}

// FetchMergeEvents fetches all merge events with block number >=
// fromBlock, oldest first, deduplicated.
//
// The provider caps pages at 1000 records and pages cannot be addressed
// by offset, so the scan advances fromBlock to the last block seen. The
// overlap re-fetches that block's events, which dedup removes. When an
// entire page falls inside one block the cursor moves past it instead;
// a single block never holds more than a page of merges.
func (s *Scanner) FetchMergeEvents(ctx context.Context, fromBlock int64) ([]domain.MergeEvent, error) {
	var events []domain.MergeEvent
	seen := make(map[string]struct{})
	cursor := fromBlock
	page := 0

	for {
		logs, err := s.source.GetLogs(ctx, ethereum.LogQuery{
			Address:   s.params.ContractAddress,
			FromBlock: cursor,
			Topic0:    ethereum.MassUpdateTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch merge events page %d: %w", page, err)
		}
		if len(logs) == 0 {
			break
		}
		page++

		firstBlock, err := ethereum.ParseHexInt64(logs[0].BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("parse block number: %w", err)
		}
		lastBlock, err := ethereum.ParseHexInt64(logs[len(logs)-1].BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("parse block number: %w", err)
		}

		added := 0
		for _, raw := range logs {
			ev, err := parseMergeLog(raw)
			if err != nil {
				return nil, fmt.Errorf("parse merge log in block %s: %w", raw.BlockNumber, err)
			}
			key := ev.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			events = append(events, ev)
			added++
		}

		s.logger.Printf("merge events page %d: %d logs, %d new, blocks %d..%d",
			page, len(logs), added, firstBlock, lastBlock)

		if len(logs) < ethereum.DefaultPageSize {
			break
		}

		if firstBlock == lastBlock {
			cursor = lastBlock + 1
		} else {
			cursor = lastBlock
		}

		if s.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.pageDelay):
			}
		}
	}

	domain.SortEventsByBlock(events)
	return events, nil
}

// FetchBurnEvent fetches the merge event that burned a single token, or
// nil if the token was never burned.
func (s *Scanner) FetchBurnEvent(ctx context.Context, tokenID int) (*domain.MergeEvent, error) {
	logs, err := s.source.GetLogs(ctx, ethereum.LogQuery{
		Address:   s.params.ContractAddress,
		FromBlock: s.params.DeployBlock,
		Topic0:    ethereum.MassUpdateTopic,
		Topic1:    ethereum.PadTopic(fmt.Sprintf("0x%x", tokenID)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch burn event for token %d: %w", tokenID, err)
	}
	if len(logs) == 0 {
		return nil, nil
	}

	// A token burns exactly once; take the first match.
	ev, err := parseMergeLog(logs[0])
	if err != nil {
		return nil, fmt.Errorf("parse burn event for token %d: %w", tokenID, err)
	}
	return &ev, nil
}

// FetchCustodialTransfers fetches every transfer into or out of the
// custodial omnibus wallet from fromBlock on, oldest first. Transfers
// minted straight into the wallet are flagged FromZero.
func (s *Scanner) FetchCustodialTransfers(ctx context.Context, fromBlock int64) ([]domain.CustodialTransfer, error) {
	custodialTopic := ethereum.PadTopic(s.params.CustodialAddress)

	incoming, err := s.fetchTransfers(ctx, fromBlock, ethereum.LogQuery{
		Address:   s.params.ContractAddress,
		FromBlock: fromBlock,
		Topic0:    ethereum.TransferTopic,
		Topic2:    custodialTopic,
	}, +1)
	if err != nil {
		return nil, fmt.Errorf("fetch incoming custodial transfers: %w", err)
	}

	outgoing, err := s.fetchTransfers(ctx, fromBlock, ethereum.LogQuery{
		Address:   s.params.ContractAddress,
		FromBlock: fromBlock,
		Topic0:    ethereum.TransferTopic,
		Topic1:    custodialTopic,
	}, -1)
	if err != nil {
		return nil, fmt.Errorf("fetch outgoing custodial transfers: %w", err)
	}

	transfers := append(incoming, outgoing...)
	domain.SortTransfersChronological(transfers)
	return transfers, nil
}

// fetchTransfers pages through one direction of custodial transfers.
func (s *Scanner) fetchTransfers(ctx context.Context, fromBlock int64, q ethereum.LogQuery, delta int) ([]domain.CustodialTransfer, error) {
	var transfers []domain.CustodialTransfer
	seen := make(map[string]struct{})
	cursor := fromBlock

	for {
		q.FromBlock = cursor
		logs, err := s.source.GetLogs(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(logs) == 0 {
			break
		}

		firstBlock, err := ethereum.ParseHexInt64(logs[0].BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("parse block number: %w", err)
		}
		lastBlock, err := ethereum.ParseHexInt64(logs[len(logs)-1].BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("parse block number: %w", err)
		}

		for _, raw := range logs {
			tr, err := parseTransferLog(raw, delta)
			if err != nil {
				return nil, fmt.Errorf("parse transfer log in block %s: %w", raw.BlockNumber, err)
			}
			key := fmt.Sprintf("%d-%d-%d", tr.TokenID, tr.BlockNumber, delta)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			transfers = append(transfers, tr)
		}

		if len(logs) < ethereum.DefaultPageSize {
			break
		}

		if firstBlock == lastBlock {
			cursor = lastBlock + 1
		} else {
			cursor = lastBlock
		}

		if s.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.pageDelay):
			}
		}
	}

	return transfers, nil
}

// parseMergeLog decodes a MassUpdate log: topics carry the burned and
// surviving token IDs, data carries the combined mass.
func parseMergeLog(raw ethereum.RawLog) (domain.MergeEvent, error) {
	if len(raw.Topics) < 3 {
		return domain.MergeEvent{}, fmt.Errorf("expected 3 topics, got %d", len(raw.Topics))
	}

	burnedID, err := ethereum.ParseHexInt64(raw.Topics[1])
	if err != nil {
		return domain.MergeEvent{}, fmt.Errorf("burned id: %w", err)
	}
	persistID, err := ethereum.ParseHexInt64(raw.Topics[2])
	if err != nil {
		return domain.MergeEvent{}, fmt.Errorf("persist id: %w", err)
	}
	mass, err := ethereum.ParseHexInt64(raw.Data)
	if err != nil {
		return domain.MergeEvent{}, fmt.Errorf("mass: %w", err)
	}
	block, err := ethereum.ParseHexInt64(raw.BlockNumber)
	if err != nil {
		return domain.MergeEvent{}, fmt.Errorf("block number: %w", err)
	}
	ts, err := ethereum.ParseHexInt64(raw.TimeStamp)
	if err != nil {
		return domain.MergeEvent{}, fmt.Errorf("timestamp: %w", err)
	}
	logIndex := int64(0)
	if raw.LogIndex != "" {
		logIndex, err = ethereum.ParseHexInt64(raw.LogIndex)
		if err != nil {
			return domain.MergeEvent{}, fmt.Errorf("log index: %w", err)
		}
	}

	return domain.MergeEvent{
		BurnedID:    int(burnedID),
		PersistID:   int(persistID),
		Mass:        mass,
		BlockNumber: block,
		LogIndex:    int(logIndex),
		Timestamp:   ts,
	}, nil
}

// parseTransferLog decodes an ERC-721 Transfer log relative to the
// custodial wallet; delta is +1 for incoming, -1 for outgoing.
func parseTransferLog(raw ethereum.RawLog, delta int) (domain.CustodialTransfer, error) {
	if len(raw.Topics) < 4 {
		return domain.CustodialTransfer{}, fmt.Errorf("expected 4 topics, got %d", len(raw.Topics))
	}

	tokenID, err := ethereum.ParseHexInt64(raw.Topics[3])
	if err != nil {
		return domain.CustodialTransfer{}, fmt.Errorf("token id: %w", err)
	}
	block, err := ethereum.ParseHexInt64(raw.BlockNumber)
	if err != nil {
		return domain.CustodialTransfer{}, fmt.Errorf("block number: %w", err)
	}
	ts, err := ethereum.ParseHexInt64(raw.TimeStamp)
	if err != nil {
		return domain.CustodialTransfer{}, fmt.Errorf("timestamp: %w", err)
	}

	return domain.CustodialTransfer{
		TokenID:     int(tokenID),
		BlockNumber: block,
		Timestamp:   ts,
		Delta:       delta,
		FromZero:    delta > 0 && raw.Topics[1] == ethereum.ZeroTopic,
	}, nil
}
