package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")

	// ErrPeerNotConnected is returned by Send when no outbound connection
	// to the peer has been established.
	ErrPeerNotConnected = errors.New("peer not connected")

	// ErrUnknownPeer is returned for a peer id missing from the peer table.
	ErrUnknownPeer = errors.New("unknown peer")
)

// PeerError records a failed operation against one peer.
type PeerError struct {
	Peer int
	Op   string // "send" | "close"
	Err  error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("%s peer %d: %v", e.Op, e.Peer, e.Err)
}

func (e *PeerError) Unwrap() error {
	return e.Err
}
