package costing

import (
	"sort"

	"github.com/meridian-retail/meridian/internal/shared"
)

// ConsumptionPlan is the outcome of a FIFO walk: the fragments taken from
// each layer and the remaining quantity each touched layer ends up with.
// Planning never mutates its input.
type ConsumptionPlan struct {
	Fragments  []Fragment
	TotalCost  shared.Money
	Remainders map[int64]int64
}

// RestorationPlan mirrors ConsumptionPlan for the reverse walk.
type RestorationPlan struct {
	RestoredCost shared.Money
	Remainders   map[int64]int64
}

// PlanConsumption drains layers oldest-first until qty is satisfied.
// Layers are ordered by (AcquiredAt, ID) regardless of input order. When the
// total remaining quantity is short of qty the plan fails with
// ErrInsufficientStock and no remainder is produced.
func PlanConsumption(layers []CostLayer, qty int64) (ConsumptionPlan, error) {
	if qty <= 0 {
		return ConsumptionPlan{}, ErrInvalidQuantity
	}
	ordered := sortedAsc(layers)
	var available int64
	for _, layer := range ordered {
		available += layer.RemainingQty
	}
	if available < qty {
		return ConsumptionPlan{}, ErrInsufficientStock
	}
	plan := ConsumptionPlan{Remainders: make(map[int64]int64)}
	still := qty
	for _, layer := range ordered {
		if still == 0 {
			break
		}
		if layer.RemainingQty == 0 {
			continue
		}
		take := layer.RemainingQty
		if take > still {
			take = still
		}
		cost, err := layer.UnitCost.MulQty(take)
		if err != nil {
			return ConsumptionPlan{}, err
		}
		if plan.TotalCost, err = plan.TotalCost.Add(cost); err != nil {
			return ConsumptionPlan{}, err
		}
		plan.Fragments = append(plan.Fragments, Fragment{LayerID: layer.ID, Qty: take, UnitCost: layer.UnitCost})
		plan.Remainders[layer.ID] = layer.RemainingQty - take
		still -= take
	}
	return plan, nil
}

// PlanRestoration raises remaining quantities back up towards each layer's
// original quantity, newest layer first. The walk is a heuristic: it does
// not track which consumption drew from which layer, so a return is
// reconciled generically rather than by reversing one specific sale.
func PlanRestoration(layers []CostLayer, qty int64) (RestorationPlan, error) {
	if qty <= 0 {
		return RestorationPlan{}, ErrInvalidQuantity
	}
	ordered := sortedAsc(layers)
	plan := RestorationPlan{Remainders: make(map[int64]int64)}
	still := qty
	for i := len(ordered) - 1; i >= 0 && still > 0; i-- {
		layer := ordered[i]
		headroom := layer.OriginalQty - layer.RemainingQty
		if headroom <= 0 {
			continue
		}
		give := headroom
		if give > still {
			give = still
		}
		cost, err := layer.UnitCost.MulQty(give)
		if err != nil {
			return RestorationPlan{}, err
		}
		if plan.RestoredCost, err = plan.RestoredCost.Add(cost); err != nil {
			return RestorationPlan{}, err
		}
		plan.Remainders[layer.ID] = layer.RemainingQty + give
		still -= give
	}
	if still > 0 {
		return RestorationPlan{}, ErrNothingToRestore
	}
	return plan, nil
}

func sortedAsc(layers []CostLayer) []CostLayer {
	ordered := make([]CostLayer, len(layers))
	copy(ordered, layers)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].AcquiredAt.Equal(ordered[j].AcquiredAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].AcquiredAt.Before(ordered[j].AcquiredAt)
	})
	return ordered
}
