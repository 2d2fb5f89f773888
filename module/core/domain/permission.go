package domain

// CapabilityFineLocation is the capability name the core checks by default.
const CapabilityFineLocation = "android.permission.ACCESS_FINE_LOCATION"

type PermissionState int

const (
	PermissionUnknown PermissionState = iota
	PermissionGranted
	PermissionDenied
)

func (s PermissionState) String() string {
	switch s {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	}
	return "unknown"
}

func (s PermissionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
