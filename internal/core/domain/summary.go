package domain

import "math"

type SummaryRow struct {
	AOIName         string  `json:"aoinm"`
	Category        string  `json:"category"`
	Count           int     `json:"count"`
	AOITotal        int     `json:"aoi_total"`
	CategoryPercent float64 `json:"category_percent"`
}

type LengthRow struct {
	AOIName string  `json:"aoinm"`
	LengthM float64 `json:"length_m"`
	LengthK int     `json:"length_km"`
}

// RoundHalfAwayFromZero rounds x to the given number of decimals.
func RoundHalfAwayFromZero(x float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(x*scale) / scale
}
