package epistat

import "fmt"

// Ratio is a two-part count pair reduced to lowest terms. Decimal is computed
// from the unreduced pair.
type Ratio struct {
	Numerator   int64   `json:"numerator"`
	Denominator int64   `json:"denominator"`
	Text        string  `json:"ratio_text"`
	Decimal     float64 `json:"decimal"`
}

// GCD returns the greatest common divisor of |a| and |b| (Euclid).
func GCD(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Simplify reduces a:b. If either side is zero the zero ratio "0:0" is returned.
func Simplify(a, b int64) Ratio {
	if a == 0 || b == 0 {
		return Ratio{Text: "0:0"}
	}
	g := GCD(a, b)
	n, d := a/g, b/g
	return Ratio{
		Numerator:   n,
		Denominator: d,
		Text:        fmt.Sprintf("%d:%d", n, d),
		Decimal:     ratio(a, 1, b),
	}
}
