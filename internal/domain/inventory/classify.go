package inventory

import "time"

type Status string

const (
	StatusExpired    Status = "EXPIRED"
	StatusNearExpiry Status = "NEAR_EXPIRY"
	StatusCritical   Status = "CRITICAL"
	StatusVeryLow    Status = "VERY_LOW"
	StatusLowStock   Status = "LOW_STOCK"
	StatusNormal     Status = "NORMAL"
)

// NearExpiryDays is the window, inclusive, in which stock is flagged as
// about to expire.
const NearExpiryDays = 5

// Classify maps an item to its reporting status. Expiry always wins over
// stock level. Items without an expiry date skip the expiry checks and a
// non-positive threshold skips the stock checks.
func Classify(item *Item, today time.Time) Status {
	if item.ExpiryDate != nil {
		days := DaysBetween(today, *item.ExpiryDate)
		if days < 0 {
			return StatusExpired
		}
		if days <= NearExpiryDays {
			return StatusNearExpiry
		}
	}
	return classifyStock(item.Quantity, item.ThresholdQty)
}

func classifyStock(qty, threshold int64) Status {
	switch {
	case threshold <= 0 || qty >= threshold:
		return StatusNormal
	case qty*10 < threshold:
		return StatusCritical
	case qty*4 < threshold:
		return StatusVeryLow
	default:
		return StatusLowStock
	}
}

// DaysBetween returns the number of whole calendar days from a to b, using
// the UTC date of each.
func DaysBetween(a, b time.Time) int {
	da := civil(a)
	db := civil(b)
	return int(db.Sub(da).Hours() / 24)
}

func civil(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
