package shared

import (
	"errors"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is a monetary amount in integer minor units (cents). All internal
// arithmetic stays in int64; formatting happens only at display time.
type Money int64

// ErrAmountOverflow flags money arithmetic that exceeds the int64 range.
var ErrAmountOverflow = errors.New("shared: money amount overflows")

// MulQty multiplies a unit amount by a whole-unit quantity. A product that
// does not fit in int64 fails instead of wrapping.
func (m Money) MulQty(qty int64) (Money, error) {
	if m == 0 || qty == 0 {
		return 0, nil
	}
	product := int64(m) * qty
	if (int64(m) == math.MinInt64 && qty == -1) || product/qty != int64(m) {
		return 0, ErrAmountOverflow
	}
	return Money(product), nil
}

// Add sums two amounts with the same overflow check.
func (m Money) Add(n Money) (Money, error) {
	sum := m + n
	if (n > 0 && sum < m) || (n < 0 && sum > m) {
		return 0, ErrAmountOverflow
	}
	return sum, nil
}

// Display renders the amount with locale-aware grouping, e.g. "1,234.50".
func (m Money) Display(tag language.Tag) string {
	p := message.NewPrinter(tag)
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return p.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// DisplayDefault renders the amount for en locale.
func (m Money) DisplayDefault() string {
	return m.Display(language.English)
}
