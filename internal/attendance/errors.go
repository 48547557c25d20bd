package attendance

import (
	"errors"

	"geoattend/internal/geofence"
	"geoattend/internal/identity"
)

var (
	// ErrPermissionDenied means the user refused location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrLocationUnavailable means no current position could be obtained.
	ErrLocationUnavailable = errors.New("location unavailable")
	// ErrStoreUnavailable wraps every failed read or write of the backing store.
	ErrStoreUnavailable = errors.New("attendance store unavailable")
	// ErrMarkInProgress means another mark for the same user has not finished.
	ErrMarkInProgress = errors.New("attendance mark already in progress")
	// ErrMalformedRecord is returned by stores for documents that fail validation.
	ErrMalformedRecord = errors.New("malformed attendance record")
	// ErrRecordExists is returned by Store.Create when the key is taken.
	ErrRecordExists = errors.New("attendance record already exists")
)

// Message converts an error returned by Service into text fit for the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Location permission is required to mark attendance."
	case errors.Is(err, ErrLocationUnavailable):
		return "Could not get your current location."
	case errors.Is(err, geofence.ErrInvalidCoordinate):
		return "The reported location is not a valid coordinate."
	case errors.Is(err, identity.ErrInvalidIdentity):
		return "Your account has no usable email address."
	case errors.Is(err, ErrMarkInProgress):
		return "Attendance is already being marked. Please wait."
	default:
		return "Could not mark attendance."
	}
}
