// Package registry tracks the lifecycle of client transfers flowing through
// a sender or receiver, standing in for the service-discovery registry of a
// request/response system: there is no "instance" to discover on a
// one-way link, only the health and progress of the transfers already in
// flight.
package registry

import "github.com/r3dlight/godiode/protocol"

// Registry observes transfer lifecycle events. Implementations must be safe
// for concurrent use since events are reported from every worker stage.
type Registry interface {
	// TransferStarted is called when a Start block for id is accepted.
	TransferStarted(id protocol.ClientId)

	// TransferEnded is called when a transfer for id finishes, either
	// cleanly (aborted=false) or via an Abort block / timeout (aborted=true).
	TransferEnded(id protocol.ClientId, aborted bool)

	// HeartbeatObserved is called each time a Heartbeat block is seen,
	// letting an observer track link liveness independent of any one
	// client's transfer.
	HeartbeatObserved()

	// SyncLost is called each time the receiver's reblock or decode stage
	// signals that the reassembly state is unusable and every active
	// transfer is about to be aborted.
	SyncLost()
}

// NopRegistry discards every event. It is the zero value a Sender or
// Receiver falls back to when no Registry is configured.
type NopRegistry struct{}

func (NopRegistry) TransferStarted(protocol.ClientId)     {}
func (NopRegistry) TransferEnded(protocol.ClientId, bool) {}
func (NopRegistry) HeartbeatObserved()                    {}
func (NopRegistry) SyncLost()                             {}
