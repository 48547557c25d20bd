// Package geofence decides whether a reported coordinate is close enough to a
// reference point to admit an attendance mark.
package geofence

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters used by the spherical model.
const EarthRadius = 6371000.0

// DefaultRadius is the admission radius in meters.
const DefaultRadius = 500.0

// DefaultCenter is the reference location used when none is configured.
var DefaultCenter = Point{Lat: 28.66732, Lon: 77.165497}

// ErrInvalidCoordinate is returned for out-of-range or non-finite coordinates.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Validate reports whether p is a finite coordinate inside the valid ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, p.Lat)
	}
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, p.Lon)
	}
	return nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the great-circle distance in meters between a and b using
// the haversine formula.
func Distance(a, b Point) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h slightly past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadius * c, nil
}

// Admit reports whether a distance is inside radius. The boundary admits.
func Admit(distance, radius float64) bool {
	return distance <= radius
}

// Round returns d rounded to one decimal place for display.
func Round(d float64) float64 {
	return math.Round(d*10) / 10
}

// Fence is a circular area around Center.
type Fence struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius_meters"`
}

// New builds a fence, validating the center and radius.
func New(center Point, radius float64) (Fence, error) {
	if err := center.Validate(); err != nil {
		return Fence{}, err
	}
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		return Fence{}, fmt.Errorf("geofence: radius must be positive, got %v", radius)
	}
	return Fence{Center: center, Radius: radius}, nil
}

// Decision is the outcome of a fence check.
type Decision struct {
	Admitted bool    `json:"admitted"`
	Distance float64 `json:"distance_meters"`
	Radius   float64 `json:"radius_meters"`
}

// Rounded returns the distance rounded to one decimal place.
func (d Decision) Rounded() float64 { return Round(d.Distance) }

// Check measures p against the fence.
func (f Fence) Check(p Point) (Decision, error) {
	d, err := Distance(p, f.Center)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Admitted: Admit(d, f.Radius), Distance: d, Radius: f.Radius}, nil
}
