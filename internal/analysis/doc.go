// Package analysis summarizes the event logs of a run.
//
// Per machine it reports entry counts by kind, the final logical clock, the
// configured clock rate (from the INIT entry), the average wall-clock gap
// between entries, the drift time and the inbox depths seen on receive.
// Drift time is finalLC/clockRate minus the elapsed wall time between the
// machine's first and last entry: positive when the logical clock ran ahead
// of the machine's own ticks, which happens when receives pull it forward.
package analysis
