package machine

import "fmt"

// Target is the recipient choice of a send event.
type Target int

const (
	// TargetFirst sends to the lowest peer id.
	TargetFirst Target = iota
	// TargetSecond sends to the second-lowest peer id.
	TargetSecond
	// TargetAll sends to every peer.
	TargetAll

	numTargets = 3
)

func (t Target) String() string {
	switch t {
	case TargetFirst:
		return "first"
	case TargetSecond:
		return "second"
	case TargetAll:
		return "all"
	}
	return fmt.Sprintf("Target(%d)", int(t))
}

// ChooseTarget picks a target uniformly among first, second and all when
// there are at least two peers. With a single peer the only choice is the
// first peer. numPeers must be positive.
func ChooseTarget(src Source, numPeers int) Target {
	if numPeers < 2 {
		return TargetFirst
	}
	return Target(src.IntN(numTargets))
}

// Recipients resolves the target against peers sorted by ascending id.
func (t Target) Recipients(peers []int) []int {
	switch {
	case len(peers) == 0:
		return nil
	case t == TargetAll:
		return append([]int(nil), peers...)
	case t == TargetSecond && len(peers) > 1:
		return []int{peers[1]}
	default:
		return []int{peers[0]}
	}
}

// Detail is the SEND log detail for this target.
func (t Target) Detail(peers []int) string {
	recipients := t.Recipients(peers)
	switch {
	case t == TargetAll && len(recipients) == 2:
		return "to both"
	case t == TargetAll && len(recipients) > 2:
		return "to all"
	case len(recipients) == 1:
		return fmt.Sprintf("to %d", recipients[0])
	}
	return "to none"
}
