package fastpath

import (
	"context"
	"math/rand"

	wr "github.com/mroth/weightedrand"

	"github.com/mnemo-dev/mnemo/internal/types"
)

// EntitySource supplies the candidate pool the warmup sampler draws
// from — implemented by internal/engine against the Metadata Store.
type EntitySource interface {
	RecentEntities(ctx context.Context, limit int) ([]types.Candidate, error)
}

const defaultWarmupSample = 500

// Warmup runs once at startup in a detached goroutine (per spec.md §5:
// "runs in a detached background thread that may proceed concurrently
// with incoming queries"). It draws a weighted, bounded sample of
// entities — more recent entities more likely — and inserts each into
// idx, then marks idx warm. Queries issued before this completes simply
// miss at tier 0; Warmup never blocks a caller.
func Warmup(ctx context.Context, idx *Index, src EntitySource, sampleSize int) error {
	if sampleSize <= 0 {
		sampleSize = defaultWarmupSample
	}

	pool, err := src.RecentEntities(ctx, sampleSize*4)
	if err != nil {
		return err
	}
	defer idx.MarkWarm()

	if len(pool) == 0 {
		return nil
	}
	if len(pool) <= sampleSize {
		for _, c := range pool {
			idx.Insert(c.Content, c)
		}
		return nil
	}

	choices := make([]wr.Choice, 0, len(pool))
	for i, c := range pool {
		// Linearly decaying weight: the most recent entity (index 0)
		// is len(pool)x more likely to be drawn than the oldest.
		weight := uint(len(pool) - i)
		choices = append(choices, wr.Choice{Item: c, Weight: weight})
	}
	chooser, err := wr.NewChooser(choices...)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, sampleSize)
	rng := rand.New(rand.NewSource(int64(len(pool))))
	for len(seen) < sampleSize {
		c := chooser.PickSource(rng).(types.Candidate)
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		idx.Insert(c.Content, c)
	}
	return nil
}
