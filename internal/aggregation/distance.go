package aggregation

import (
	"strconv"

	"github.com/tidwall/geodesic"
)

// Distance returns the geodesic distance in meters between two points on the
// WGS-84 ellipsoid
func Distance(from, to Location) float64 {
	var meters float64
	geodesic.WGS84.Inverse(from.Latitude, from.Longitude, to.Latitude, to.Longitude, &meters, nil, nil)
	return meters
}

// roundMeters rounds to centimeter precision using the exact decimal value of
// v, halves going to even. Scaling by 100 first would move values such as
// 1.115 (stored just below the half) onto the half.
func roundMeters(v float64) float64 {
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return rounded
}
