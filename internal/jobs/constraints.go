package jobs

import (
	"net"

	"jobctl/internal/job"
)

// NetworkConstraintKey gates jobs on basic network availability.
const NetworkConstraintKey = "NetworkConstraint"

// NetworkConstraint is met when the host has a non-loopback address. It is
// a fresh check every time; conditions change between evaluations.
type NetworkConstraint struct{}

func (NetworkConstraint) IsMet() bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if ok && !ipNet.IP.IsLoopback() {
			return true
		}
	}
	return false
}

func networkConstraintFactory() job.Constraint { return NetworkConstraint{} }
