package common

import "math"

// KmPerDegree converts a planar degree delta to kilometres.
const KmPerDegree = 111.0

type Location struct {
	Lat float64 `json:"lat" db:"lat"`
	Lng float64 `json:"lng" db:"lng"`
}

func NewLocation(lat, lng float64) Location {
	return Location{Lat: lat, Lng: lng}
}

// PlanarDistance is the Euclidean distance between a and b measured in raw
// degrees. It is not a great-circle distance.
func PlanarDistance(a, b Location) float64 {
	return math.Hypot(b.Lat-a.Lat, b.Lng-a.Lng)
}

// PlanarDistanceKm scales PlanarDistance by KmPerDegree.
func PlanarDistanceKm(a, b Location) float64 {
	return PlanarDistance(a, b) * KmPerDegree
}

// CompletionPercent returns how far current has travelled from start towards
// target, capped at 100. ok is false when start and target coincide.
func CompletionPercent(start, current, target Location) (pct float64, ok bool) {
	total := PlanarDistance(start, target)
	if total <= 0 {
		return 0, false
	}
	traveled := PlanarDistance(start, current)
	return math.Min(100, traveled/total*100), true
}

type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoxAround returns the square of ±radiusDeg around center.
func BoxAround(center Location, radiusDeg float64) BoundingBox {
	return BoundingBox{
		MinLat: center.Lat - radiusDeg,
		MaxLat: center.Lat + radiusDeg,
		MinLng: center.Lng - radiusDeg,
		MaxLng: center.Lng + radiusDeg,
	}
}

func (b BoundingBox) Contains(loc Location) bool {
	return loc.Lat >= b.MinLat && loc.Lat <= b.MaxLat &&
		loc.Lng >= b.MinLng && loc.Lng <= b.MaxLng
}
