package state

import "time"

// INF marks a destination as unreachable. Entries whose cost reaches INF
// are withdrawn rather than advertised.
const INF = Cost(16)

var (
	DefaultHeartbeat = int64(1000) // milliseconds

	// reliable transport
	RtpTimeout      = 500 * time.Millisecond
	HeaderLen       = 16
	PayloadMaxBytes = 1440
	MaxDatagram     = 2048

	// mock network
	ProbeTTL = time.Second * 5
)
