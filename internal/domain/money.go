package domain

import "strconv"

// Rupiah renders an integer rupiah amount in the id-ID display style,
// e.g. 25000 -> "Rp 25.000".
func Rupiah(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	var grouped []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, '.')
		}
		grouped = append(grouped, d)
	}

	if negative {
		return "Rp -" + string(grouped)
	}
	return "Rp " + string(grouped)
}
