package analysis

import (
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/roach88/lamportsim/internal/eventlog"
)

// Flow counts messages on one directed machine pair.
type Flow struct {
	From     int `json:"from"`
	To       int `json:"to"`
	Sent     int `json:"sent"`
	Received int `json:"received"`
}

// InFlight is the number of sent messages the receiver never logged. At the
// end of a run these are messages still queued, still on the wire or lost
// when the run stopped.
func (f Flow) InFlight() int {
	return f.Sent - f.Received
}

// MessageFlows pairs SEND entries with RECEIVE entries per machine pair.
// The peer set of every machine is taken to be the other machines in logs,
// which is how "to both" and "to all" details are resolved.
func MessageFlows(logs map[int][]eventlog.Entry) []Flow {
	sent := simple.NewWeightedDirectedGraph(0, 0)
	received := simple.NewWeightedDirectedGraph(0, 0)

	ids := make([]int, 0, len(logs))
	for id := range logs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		for _, e := range logs[id] {
			switch e.Kind {
			case eventlog.KindSend:
				for _, to := range sendTargets(e.Detail, id, ids) {
					addWeight(sent, id, to)
				}
			case eventlog.KindReceive:
				if from, ok := eventlog.From(e.Detail); ok && from != id {
					addWeight(received, from, id)
				}
			}
		}
	}

	var flows []Flow
	for _, from := range ids {
		for _, to := range ids {
			if from == to {
				continue
			}
			s := weight(sent, from, to)
			r := weight(received, from, to)
			if s == 0 && r == 0 {
				continue
			}
			flows = append(flows, Flow{From: from, To: to, Sent: s, Received: r})
		}
	}
	return flows
}

// sendTargets resolves a SEND detail against the machines in the run.
func sendTargets(detail string, self int, ids []int) []int {
	target := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(detail), "to"))
	switch target {
	case "both", "all":
		out := make([]int, 0, len(ids))
		for _, id := range ids {
			if id != self {
				out = append(out, id)
			}
		}
		return out
	}
	n, err := strconv.Atoi(target)
	if err != nil || n == self {
		return nil
	}
	return []int{n}
}

func addWeight(g *simple.WeightedDirectedGraph, from, to int) {
	w := float64(weight(g, from, to)) + 1
	g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(from), simple.Node(to), w))
}

func weight(g *simple.WeightedDirectedGraph, from, to int) int {
	w, ok := g.Weight(int64(from), int64(to))
	if !ok {
		return 0
	}
	return int(w)
}
