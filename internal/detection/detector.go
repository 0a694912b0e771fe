package detection

import (
	"math/big"
	"time"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/history"
	"sandwich-watch/internal/idhash"
)

// Config holds matcher parameters.
type Config struct {
	HistoryCapacity int // ring size (default 10)
	SweepInterval   int // ring cycles between eviction sweeps (default 1)
}

// DefaultConfig returns the default matcher configuration.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity: 10,
		SweepInterval:   1,
	}
}

// Stats are cumulative detector counters.
type Stats struct {
	Processed int64 // router-matched swaps handed to the matcher
	Ignored   int64 // swaps dropped because the tx did not target the router
	Inserted  int64
	Findings  int64
	Sweeps    int64
	Evicted   int64
}

// Detector recognises front -> victim -> back sandwiches over a bounded
// history of recent swaps.
//
// Swaps must be delivered sequentially in blockchain order; the detector keeps
// no locks. Use one Detector per monitored router.
type Detector struct {
	config    Config
	history   *history.Store
	lastSweep uint64 // ring cycle of the last sweep
	stats     Stats
	now       func() time.Time
}

// NewDetector creates a detector with a fresh history.
func NewDetector(config Config) *Detector {
	if config.HistoryCapacity <= 0 {
		config.HistoryCapacity = DefaultConfig().HistoryCapacity
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Detector{
		config:  config,
		history: history.NewStore(config.HistoryCapacity),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for Finding.DetectedAt.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.config
}

// History exposes the underlying store for inspection.
func (d *Detector) History() *history.Store {
	return d.history
}

// Stats returns a snapshot of the detector counters.
func (d *Detector) Stats() Stats {
	return d.stats
}

// ProcessEvent runs the matcher for one swap event. Events whose transaction
// did not target the router are ignored. Returns the finding, or nil.
func (d *Detector) ProcessEvent(ev *domain.SwapEvent) *domain.Finding {
	if ev == nil || !ev.RouterMatched {
		d.stats.Ignored++
		return nil
	}
	return d.Process(&ev.SwapObservation)
}

// Process treats obs as a candidate back trade. If a reversed trade by the
// same account on the same pair still occupies its ring slot and another account traded in
// the front's direction in between, a finding is returned and both the front
// and the victim are dropped from history. Otherwise obs is retained as a
// future front candidate.
func (d *Detector) Process(obs *domain.SwapObservation) *domain.Finding {
	d.stats.Processed++
	key := history.KeyFor(obs)

	if front, ok := d.history.LookupLive(key); ok && front.Observation.Reverses(obs) {
		if victim, found := d.findVictim(front, obs); found {
			d.history.Delete(front.Key)
			d.history.Delete(victim.Key)
			d.stats.Findings++
			return d.buildFinding(front.Observation, victim.Observation, obs)
		}
	}

	d.history.Insert(key, obs)
	d.stats.Inserted++

	if d.history.Cursor() == 0 {
		d.maybeSweep()
	}
	return nil
}

// findVictim scans live history for a trade by a third account in the front's
// direction that arrived after the front. Every retained entry arrived before
// the back trade, so only the lower bound needs checking. When several entries
// qualify the earliest arrival wins.
func (d *Detector) findVictim(front history.Entry, back *domain.SwapObservation) (history.Entry, bool) {
	var (
		victim history.Entry
		found  bool
	)
	upper := d.history.NextSeq()

	for _, e := range d.history.Live() {
		o := e.Observation
		if o.Account == front.Observation.Account || o.Account == back.Account {
			continue
		}
		if !o.SameDirection(front.Observation) {
			continue
		}
		if e.Seq <= front.Seq || e.Seq >= upper {
			continue
		}
		if !found || e.Seq < victim.Seq {
			victim = e
			found = true
		}
	}
	return victim, found
}

// maybeSweep runs the eviction sweep once every SweepInterval ring cycles.
func (d *Detector) maybeSweep() {
	cycles := d.history.Cycles()
	if cycles-d.lastSweep < uint64(d.config.SweepInterval) {
		return
	}
	d.lastSweep = cycles
	d.stats.Sweeps++
	d.stats.Evicted += int64(d.history.SweepUnreferenced())
}

func (d *Detector) buildFinding(front, victim, back *domain.SwapObservation) *domain.Finding {
	return &domain.Finding{
		FindingID:          idhash.ComputeFindingID(front.TxRef, victim.TxRef, back.TxRef),
		Router:             back.Router,
		BlockNumber:        back.BlockNumber,
		FrontTxRef:         front.TxRef,
		VictimTxRef:        victim.TxRef,
		BackTxRef:          back.TxRef,
		VictimAccount:      victim.Account,
		VictimTokenIn:      victim.TokenIn,
		VictimTokenOut:     victim.TokenOut,
		VictimAmountIn:     domain.AmountString(victim.AmountIn),
		VictimAmountOut:    domain.AmountString(victim.AmountOut),
		FrontrunnerAccount: front.Account,
		FrontrunnerProfit:  profit(back, front),
		ProfitToken:        front.TokenIn,
		DetectedAt:         d.now().UnixMilli(),
	}
}

// profit is backAmountOut - frontAmountIn in the front's input token. The
// result is signed; a losing sandwich yields a negative value.
func profit(back, front *domain.SwapObservation) string {
	out := new(big.Int)
	if back.AmountOut != nil {
		out = back.AmountOut.ToBig()
	}
	in := new(big.Int)
	if front.AmountIn != nil {
		in = front.AmountIn.ToBig()
	}
	return new(big.Int).Sub(out, in).String()
}
