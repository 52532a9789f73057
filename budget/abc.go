package budget

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/generic"
)

// ABCClass is a Pareto bucket.
type ABCClass string

const (
	ClassA ABCClass = "A"
	ClassB ABCClass = "B"
	ClassC ABCClass = "C"
)

var (
	// ABCThresholdA is the cumulative share (percent) up to which items are class A.
	ABCThresholdA = decimal.NewFromInt(80)
	// ABCThresholdB is the cumulative share (percent) up to which items are class B.
	ABCThresholdB = decimal.NewFromInt(95)
)

// RankedItem is a line item placed in the Pareto ranking.
type RankedItem struct {
	LineItem
	Rank              int             `json:"rank"`
	InputIndex        int             `json:"input_index"`
	Source            string          `json:"source,omitempty"`
	SharePercent      decimal.Decimal `json:"share_percent"`
	CumulativePercent decimal.Decimal `json:"cumulative_percent"`
	Class             ABCClass        `json:"class"`
}

// ClassTotals summarizes one class.
type ClassTotals struct {
	Count   int             `json:"count"`
	Total   decimal.Decimal `json:"total"`
	Percent decimal.Decimal `json:"percent"`
}

// ABCResult is the outcome of ClassifyABC.
type ABCResult struct {
	Items []RankedItem    `json:"items"`
	Total decimal.Decimal `json:"total"`
	A     ClassTotals     `json:"class_a"`
	B     ClassTotals     `json:"class_b"`
	C     ClassTotals     `json:"class_c"`
}

// Class returns the totals of one class.
func (r ABCResult) Class(c ABCClass) ClassTotals {
	switch c {
	case ClassA:
		return r.A
	case ClassB:
		return r.B
	default:
		return r.C
	}
}

// ClassifyABC ranks items by subtotal (descending, ties keep input order)
// and buckets them by the cumulative share reached after adding each item:
// <= 80% is A, <= 95% is B, the rest is C. An item whose cumulative share
// lands exactly on a threshold stays in the lower class.
func ClassifyABC(items []LineItem) ABCResult {
	ranked := make([]RankedItem, len(items))
	total := decimal.Zero
	for i, it := range items {
		it = it.Computed()
		ranked[i] = RankedItem{LineItem: it, InputIndex: i}
		total = total.Add(it.Subtotal)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Subtotal.GreaterThan(ranked[j].Subtotal)
	})

	result := ABCResult{
		Items: ranked,
		Total: total,
		A:     ClassTotals{Total: decimal.Zero, Percent: decimal.Zero},
		B:     ClassTotals{Total: decimal.Zero, Percent: decimal.Zero},
		C:     ClassTotals{Total: decimal.Zero, Percent: decimal.Zero},
	}

	running := decimal.Zero
	for i := range ranked {
		running = running.Add(ranked[i].Subtotal)
		ranked[i].Rank = i + 1
		ranked[i].SharePercent = generic.Percent(ranked[i].Subtotal, total)
		ranked[i].CumulativePercent = generic.Percent(running, total)
		ranked[i].Class = classFor(running, total)

		bucket := result.bucket(ranked[i].Class)
		bucket.Count++
		bucket.Total = bucket.Total.Add(ranked[i].Subtotal)
	}

	result.A.Percent = generic.Percent(result.A.Total, total)
	result.B.Percent = generic.Percent(result.B.Total, total)
	result.C.Percent = generic.Percent(result.C.Total, total)
	return result
}

// classFor compares running*100 against threshold*total so the decision
// never depends on a rounded quotient. CumulativePercent is display only.
func classFor(running, total decimal.Decimal) ABCClass {
	scaled := running.Mul(generic.Hundred)
	switch {
	case scaled.LessThanOrEqual(ABCThresholdA.Mul(total)):
		return ClassA
	case scaled.LessThanOrEqual(ABCThresholdB.Mul(total)):
		return ClassB
	default:
		return ClassC
	}
}

func (r *ABCResult) bucket(c ABCClass) *ClassTotals {
	switch c {
	case ClassA:
		return &r.A
	case ClassB:
		return &r.B
	default:
		return &r.C
	}
}
