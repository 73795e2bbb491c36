package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// snapshotFrom builds a snapshot from a membership mask over a small pool of
// security ids, so generated prev/curr pairs overlap often enough to exercise
// every change classification.
func snapshotFrom(picks []bool, weights, shares []int64) []models.Holding {
	rows := make([]models.Holding, 0, len(picks))
	for i, in := range picks {
		if !in {
			continue
		}
		isin := fmt.Sprintf("SEC%02d", i)
		rows = append(rows, models.Holding{
			ISIN:         &isin,
			SecurityName: "Security " + isin,
			WeightPct:    decimal.New(weights[i]%10000, -2),
			SharesHeld:   decimal.NewFromInt(shares[i] % 1_000_000),
		})
	}
	return rows
}

func TestComputeChangesProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	tradeDate := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	const pool = 8

	genInputs := gopter.CombineGens(
		gen.SliceOfN(pool, gen.Bool()),
		gen.SliceOfN(pool, gen.Bool()),
		gen.SliceOfN(pool, gen.Int64Range(0, 1_000_000)),
		gen.SliceOfN(pool, gen.Int64Range(0, 1_000_000)),
		gen.SliceOfN(pool, gen.Int64Range(0, 1_000_000)),
		gen.SliceOfN(pool, gen.Int64Range(0, 1_000_000)),
	)

	type inputs struct {
		prev, curr []models.Holding
	}

	genSnapshots := genInputs.Map(func(vals []interface{}) inputs {
		prevIn := vals[0].([]bool)
		currIn := vals[1].([]bool)
		return inputs{
			prev: snapshotFrom(prevIn, vals[2].([]int64), vals[3].([]int64)),
			curr: snapshotFrom(currIn, vals[4].([]int64), vals[5].([]int64)),
		}
	})

	properties.Property("every emitted key comes from prev or curr, classified by membership", prop.ForAll(
		func(in inputs) bool {
			prevIDs := make(map[string]bool)
			for _, h := range in.prev {
				prevIDs[h.SecurityID()] = true
			}
			currIDs := make(map[string]bool)
			for _, h := range in.curr {
				currIDs[h.SecurityID()] = true
			}

			for _, c := range ComputeChanges("0050", tradeDate, in.prev, in.curr) {
				inPrev, inCurr := prevIDs[c.SecurityID], currIDs[c.SecurityID]
				switch {
				case !inPrev && !inCurr:
					return false
				case c.ChangeType == types.ChangeAdded && inPrev:
					return false
				case c.ChangeType == types.ChangeRemoved && inCurr:
					return false
				case c.ChangeType != types.ChangeAdded && c.ChangeType != types.ChangeRemoved && !(inPrev && inCurr):
					return false
				}
			}
			return true
		},
		genSnapshots,
	))

	properties.Property("identical snapshots produce no changes", prop.ForAll(
		func(in inputs) bool {
			return len(ComputeChanges("0050", tradeDate, in.prev, in.prev)) == 0
		},
		genSnapshots,
	))

	properties.Property("at most one change per security id, in sorted order", prop.ForAll(
		func(in inputs) bool {
			seen := make(map[string]bool)
			last := ""
			for _, c := range ComputeChanges("0050", tradeDate, in.prev, in.curr) {
				if seen[c.SecurityID] || c.SecurityID < last {
					return false
				}
				seen[c.SecurityID] = true
				last = c.SecurityID
			}
			return true
		},
		genSnapshots,
	))

	properties.Property("diffing is deterministic", prop.ForAll(
		func(in inputs) bool {
			a := ComputeChanges("0050", tradeDate, in.prev, in.curr)
			b := ComputeChanges("0050", tradeDate, in.prev, in.curr)
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i].SecurityID != b[i].SecurityID || a[i].ChangeType != b[i].ChangeType ||
					!a[i].WeightDelta.Equal(b[i].WeightDelta) || !a[i].SharesDelta.Equal(b[i].SharesDelta) {
					return false
				}
			}
			return true
		},
		genSnapshots,
	))

	properties.TestingRun(t)
}
