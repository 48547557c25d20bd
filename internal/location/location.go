// Package location models the device location service consulted before a mark.
package location

import (
	"context"
	"errors"
	"strings"

	"geoattend/internal/geofence"
)

// ErrUnavailable is returned when no current coordinate can be obtained.
var ErrUnavailable = errors.New("location unavailable")

// Permission is the outcome of a location permission request.
type Permission int

const (
	Denied Permission = iota
	Granted
)

func (p Permission) String() string {
	if p == Granted {
		return "granted"
	}
	return "denied"
}

// ParsePermission maps a client-reported permission status. Anything other
// than "granted" is treated as a denial.
func ParsePermission(s string) Permission {
	if strings.EqualFold(strings.TrimSpace(s), "granted") {
		return Granted
	}
	return Denied
}

// Source is the device location service.
type Source interface {
	RequestPermission(ctx context.Context) (Permission, error)
	CurrentCoordinate(ctx context.Context) (geofence.Point, error)
}

// Reported replays what a client observed on the device: the permission
// status, the fix it obtained (if any) and the error it hit (if any).
type Reported struct {
	Permission Permission
	Lat        *float64
	Lon        *float64
	Failure    string
}

// RequestPermission returns the reported permission status.
func (r Reported) RequestPermission(context.Context) (Permission, error) {
	return r.Permission, nil
}

// CurrentCoordinate returns the reported fix or ErrUnavailable.
func (r Reported) CurrentCoordinate(context.Context) (geofence.Point, error) {
	if r.Failure != "" {
		return geofence.Point{}, errors.Join(ErrUnavailable, errors.New(r.Failure))
	}
	if r.Lat == nil || r.Lon == nil {
		return geofence.Point{}, ErrUnavailable
	}
	return geofence.Point{Lat: *r.Lat, Lon: *r.Lon}, nil
}

// Fixed is a source that is always granted and always at Point.
type Fixed struct {
	Point geofence.Point
}

func (Fixed) RequestPermission(context.Context) (Permission, error) { return Granted, nil }

func (f Fixed) CurrentCoordinate(context.Context) (geofence.Point, error) { return f.Point, nil }
