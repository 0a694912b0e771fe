package verification

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"sandwich-watch/internal/detection"
	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/ingestion"
	"sandwich-watch/internal/observability"
	"sandwich-watch/internal/storage"
)

// FindingSource loads stored findings by block range.
type FindingSource interface {
	GetByBlockRange(ctx context.Context, from, to uint64) ([]*domain.Finding, error)
}

// ReplayVerifier implements Verifier by replaying stored observations.
//
// Replay starts with an empty history, so the range should begin where the
// original detection run began. A sandwich whose front trade precedes the
// range is reported as missing.
type ReplayVerifier struct {
	observations storage.ObservationStore
	findings     FindingSource
	router       common.Address
	config       detection.Config
	logger       *log.Logger
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	ObservationStore storage.ObservationStore
	FindingStore     FindingSource
	Router           common.Address
	Config           detection.Config // must match the configuration of the original run
	Logger           *log.Logger
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &ReplayVerifier{
		observations: opts.ObservationStore,
		findings:     opts.FindingStore,
		router:       opts.Router,
		config:       opts.Config,
		logger:       logger,
	}
}

// Verify replays [from, to] and compares replayed and stored findings.
// Stored findings of other routers sharing the store are ignored.
func (v *ReplayVerifier) Verify(ctx context.Context, from, to uint64) (*VerificationReport, error) {
	inRange, err := v.findings.GetByBlockRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load stored findings: %w", err)
	}
	stored := make([]*domain.Finding, 0, len(inRange))
	for _, f := range inRange {
		if f.Router == v.router {
			stored = append(stored, f)
		}
	}

	// Fresh engine without a sink; the replay must not write anything.
	engine := detection.NewEngine(detection.EngineOptions{
		Config:  v.config,
		Metrics: observability.NewMetrics("verification", prometheus.NewRegistry()),
		Logger:  log.New(io.Discard, "", 0),
	})
	replayer := ingestion.NewReplayer(ingestion.ReplayerOptions{
		ObservationStore: v.observations,
		Engine:           engine,
		Router:           v.router,
		Logger:           v.logger,
	})

	result, err := replayer.Replay(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	report := compare(stored, result.Findings)
	report.FromBlock = from
	report.ToBlock = to

	v.logger.Printf("Verified blocks %d-%d: %d stored, %d replayed, %d matched, %d divergent, %d missing, %d unexpected",
		from, to, report.StoredFindings, report.ReplayedFindings, report.MatchedFindings,
		report.DivergentFindings, len(report.Missing), len(report.Unexpected))

	return report, nil
}

func compare(stored, replayed []*domain.Finding) *VerificationReport {
	report := &VerificationReport{
		StoredFindings:   len(stored),
		ReplayedFindings: len(replayed),
	}

	byID := make(map[string]*domain.Finding, len(replayed))
	for _, f := range replayed {
		byID[f.FindingID] = f
	}

	seen := make(map[string]bool, len(stored))
	for _, s := range stored {
		seen[s.FindingID] = true
		r, ok := byID[s.FindingID]
		if !ok {
			report.Missing = append(report.Missing, s.FindingID)
			continue
		}

		divergences := CompareFindings(s, r)
		report.Results = append(report.Results, VerificationResult{
			FindingID:   s.FindingID,
			Match:       len(divergences) == 0,
			Divergences: divergences,
		})
		if len(divergences) == 0 {
			report.MatchedFindings++
		} else {
			report.DivergentFindings++
		}
	}

	for _, r := range replayed {
		if !seen[r.FindingID] {
			report.Unexpected = append(report.Unexpected, r.FindingID)
		}
	}

	sort.Strings(report.Missing)
	sort.Strings(report.Unexpected)
	return report
}

var _ Verifier = (*ReplayVerifier)(nil)
