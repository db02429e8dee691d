package submit

import (
	"github.com/smallbiznis/fapiaolink/internal/ledger"
)

type lineKey struct {
	commodityCode string
	unitPrice     string
	taxPercent    string
}

// AggregateLines folds billing lines that share commodity code, unit
// price and tax rate into one line each, summing quantity and amount.
// Groups keep the order in which their first line appeared; the first
// line also donates description and unit.
func AggregateLines(lines []ledger.RawLine) []ledger.RawLine {
	merged := make([]ledger.RawLine, 0, len(lines))
	index := make(map[lineKey]int, len(lines))

	for _, line := range lines {
		key := lineKey{
			commodityCode: line.CommodityCode,
			unitPrice:     line.UnitPrice.String(),
			taxPercent:    line.TaxPercent.String(),
		}
		at, ok := index[key]
		if !ok {
			index[key] = len(merged)
			merged = append(merged, line)
			continue
		}
		merged[at].Quantity = merged[at].Quantity.Add(line.Quantity)
		merged[at].ExtendedPrice = merged[at].ExtendedPrice.Add(line.ExtendedPrice)
	}
	return merged
}
