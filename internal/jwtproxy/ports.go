package jwtproxy

import (
	"fmt"
	"log/slog"
)

const (
	FirstAvailablePort = 4400
	maxPort            = 65535
)

// PortAllocator hands out sidecar listen ports in strictly increasing order.
// Ports are never reused and are not checked against the rest of the cluster.
// It is not safe for concurrent use.
type PortAllocator struct {
	first int
	next  int
}

func NewPortAllocator(first int) (*PortAllocator, error) {
	if first < 1 || first > maxPort {
		return nil, fmt.Errorf("%w: first port %d must be between 1 and %d", ErrInvalidArgument, first, maxPort)
	}
	return &PortAllocator{first: first, next: first}, nil
}

// Next returns the next listen port. The counter only advances on success.
func (pa *PortAllocator) Next() (int, error) {
	if pa.next > maxPort {
		slog.Error("Listen port allocation failed: range exhausted",
			"first", pa.first,
			"allocated", pa.Allocated())
		return 0, fmt.Errorf("%w: next port %d exceeds %d", ErrPortRangeExhausted, pa.next, maxPort)
	}
	port := pa.next
	pa.next++

	slog.Debug("Listen port allocated", "port", port, "allocated", pa.Allocated())
	return port, nil
}

// Peek returns the port the next call to Next would return.
func (pa *PortAllocator) Peek() int {
	return pa.next
}

// Allocated returns how many ports lie behind the counter, including any
// skipped by recovery.
func (pa *PortAllocator) Allocated() int {
	return pa.next - pa.first
}

// advanceTo moves the counter forward so that Next never returns a port below
// port. It never moves backwards.
func (pa *PortAllocator) advanceTo(port int) {
	if port > pa.next {
		pa.next = port
	}
}
