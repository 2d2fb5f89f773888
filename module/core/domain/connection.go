package domain

type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
	Suspended
	Failed
)

var connectionStatusNames = map[ConnectionStatus]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
	Suspended:    "suspended",
	Failed:       "failed",
}

func (s ConnectionStatus) String() string {
	if n, ok := connectionStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type SuspendReason int

const (
	ServiceDisconnected SuspendReason = iota + 1
	NetworkLost
)

func (r SuspendReason) String() string {
	switch r {
	case ServiceDisconnected:
		return "service_disconnected"
	case NetworkLost:
		return "network_lost"
	}
	return "none"
}

func (r SuspendReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Connection failure codes reported by location backends.
const (
	CodeServiceMissing      = 1
	CodeSignInRequired      = 4
	CodeResolutionRequired  = 6
	CodeNetworkError        = 7
	CodeInternalError       = 8
	CodeServiceUnavailable  = 9
	CodeTimeout             = 14
	CodeConnectionCancelled = 13
)

// ConnectionState is owned by the connection manager. SuspendReason is set
// only while Suspended; Code and Recoverable only while Failed.
type ConnectionState struct {
	Status        ConnectionStatus `json:"status"`
	SuspendReason SuspendReason    `json:"suspend_reason,omitempty"`
	Code          int              `json:"code,omitempty"`
	Recoverable   bool             `json:"recoverable,omitempty"`
}
