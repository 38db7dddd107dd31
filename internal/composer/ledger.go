// Ledger is the "savings ledger" spec.md §4.9 step 5 calls for: an
// append-only log of each compose() call's efficiency report, keyed by
// query. Grounded on the archival accounting pattern in ledger.py
// (original_source/), reimplemented atop internal/archive's append-only
// JSONL log rather than a bespoke format, per SPEC_FULL.md's supplemented
// feature 2.
package composer

import (
	"context"

	"github.com/mnemo-dev/mnemo/internal/archive"
)

// LedgerEntry is one row recorded after a successful Compose call.
type LedgerEntry struct {
	Query           string
	PotentialTokens int
	CurrentTokens   int
	SavedTokens     int
	Efficiency      float64
	SavedUSD        float64
}

// Ledger persists LedgerEntry rows via the shared Archive Log.
type Ledger struct {
	log *archive.Log
}

func NewLedger(log *archive.Log) *Ledger {
	return &Ledger{log: log}
}

// Record appends one entry. Never returns an error to the caller in
// practice beyond what archive.Log.Append itself can fail with (disk
// full, permissions) — composition must never be blocked by ledger
// bookkeeping, so callers should log-and-continue on error.
func (l *Ledger) Record(_ context.Context, query string, r Report) error {
	return l.log.Append(ledgerEventType, map[string]any{
		"query":            query,
		"potential_tokens": r.PotentialTokens,
		"current_tokens":   r.CurrentTokens,
		"saved_tokens":     r.SavedTokens,
		"efficiency":       r.Efficiency,
		"saved_usd":        r.SavedUSD,
	})
}

const ledgerEventType = "compose_savings"

// Summary aggregates every LedgerEntry recorded so far, for `mnemo
// stats savings`.
type Summary struct {
	Queries         int
	PotentialTokens int
	CurrentTokens   int
	SavedTokens     int
	SavedUSD        float64
}

// Summarize replays the archive log at path, folding every
// compose_savings event into a running total. A missing archive file
// yields a zero Summary, not an error.
func Summarize(path string) (Summary, error) {
	var sum Summary
	err := archive.Replay(path, func(ev archive.Event) error {
		if string(ev.Type) != ledgerEventType {
			return nil
		}
		sum.Queries++
		sum.PotentialTokens += intField(ev.Payload, "potential_tokens")
		sum.CurrentTokens += intField(ev.Payload, "current_tokens")
		sum.SavedTokens += intField(ev.Payload, "saved_tokens")
		if usd, ok := ev.Payload["saved_usd"].(float64); ok {
			sum.SavedUSD += usd
		}
		return nil
	})
	return sum, err
}

func intField(payload map[string]any, key string) int {
	v, ok := payload[key].(float64)
	if !ok {
		return 0
	}
	return int(v)
}
