// Package geo decides whether a delivery point lies inside the circular
// delivery region.
package geo

import "math"

const EarthRadiusKm = 6371.0

// Point is a coordinate pair; nil fields mean the coordinate is unknown.
type Point struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func NewPoint(lat, lng float64) Point {
	return Point{Lat: &lat, Lng: &lng}
}

func (p Point) valid() bool {
	return p.Lat != nil && p.Lng != nil && !math.IsNaN(*p.Lat) && !math.IsNaN(*p.Lng)
}

// Region is the delivery area, stored at miscellaneous/delivery. The bounding
// box fields are derived by WithBoundingBox.
type Region struct {
	CenterLat *float64 `json:"centerLat"`
	CenterLng *float64 `json:"centerLng"`
	RadiusKm  float64  `json:"radiusKm"`
	MinLat    float64  `json:"minLat"`
	MaxLat    float64  `json:"maxLat"`
	MinLng    float64  `json:"minLng"`
	MaxLng    float64  `json:"maxLng"`
}

func NewRegion(lat, lng, radiusKm float64) Region {
	return Region{CenterLat: &lat, CenterLng: &lng, RadiusKm: radiusKm}.WithBoundingBox()
}

func (r Region) Center() Point {
	return Point{Lat: r.CenterLat, Lng: r.CenterLng}
}

type Result struct {
	OK         bool    `json:"ok"`
	DistanceKm float64 `json:"distanceKm"`
}

// IsWithinRegion measures the great-circle distance from the region center.
// A point on the boundary is inside. Missing coordinates on either side give
// OK=false and an infinite distance.
func IsWithinRegion(p Point, r Region) Result {
	if !p.valid() || !r.Center().valid() || math.IsNaN(r.RadiusKm) {
		return Result{OK: false, DistanceKm: math.Inf(1)}
	}
	d := Haversine(*p.Lat, *p.Lng, *r.CenterLat, *r.CenterLng)
	return Result{OK: d <= r.RadiusKm, DistanceKm: d}
}

// Haversine returns the distance in kilometres between two coordinates.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// WithBoundingBox fills the lat/lng box that encloses the circle. Longitude
// span widens with latitude and is clamped to the full range near the poles.
func (r Region) WithBoundingBox() Region {
	if !r.Center().valid() {
		return r
	}
	lat, lng := *r.CenterLat, *r.CenterLng
	dLat := r.RadiusKm / EarthRadiusKm * 180 / math.Pi

	r.MinLat = math.Max(lat-dLat, -90)
	r.MaxLat = math.Min(lat+dLat, 90)

	cos := math.Cos(toRad(lat))
	if cos < 1e-9 || r.MinLat == -90 || r.MaxLat == 90 {
		r.MinLng, r.MaxLng = -180, 180
		return r
	}
	dLng := dLat / cos
	r.MinLng = math.Max(lng-dLng, -180)
	r.MaxLng = math.Min(lng+dLng, 180)
	return r
}

// Bounded reports whether the center is known and the bounding box has been
// computed for it.
func (r Region) Bounded() bool {
	return r.Center().valid() && r.MinLat < r.MaxLat && r.MinLng < r.MaxLng
}

// CoarseContains is a cheap pre-filter: false means the point is certainly
// outside the region, true means IsWithinRegion still has to decide.
func (r Region) CoarseContains(p Point) bool {
	if !p.valid() {
		return false
	}
	return *p.Lat >= r.MinLat && *p.Lat <= r.MaxLat && *p.Lng >= r.MinLng && *p.Lng <= r.MaxLng
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
