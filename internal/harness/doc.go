// Package harness checks event logs against ordering properties.
//
// It can evaluate assertions over logs already on disk (CheckDir) or run a
// short simulation described by a scenario file and evaluate the assertions
// over the logs it produced (Run).
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: three_machines
//	description: "Three machines exchange messages and keep ordered clocks"
//	machines: 3
//	run_time: 2s
//	variation_mode: small
//	internal_prob: 0.7
//	clock_rates: {1: 5}
//	assertions:
//	  - type: non_empty
//	  - type: starts_with_init
//	  - type: monotonic
//	  - type: min_entries
//	    count: 3
//	    machine: 1
//
// Machines listen on free loopback ports chosen at run time, so scenarios
// never collide with each other or with a running simulation.
//
// # Assertion Types
//
//   - non_empty: every log has at least one entry
//   - starts_with_init: the first entry is INIT and carries ClockRate
//   - monotonic: LC strictly increases on every entry after the first
//   - min_entries: a log has at least count entries
//   - queue_len_consistent: every RECEIVE carries From and QueueLen
//   - contains_kind: a log has at least one entry of the given kind
//   - machine_count: exactly count logs exist
//
// Assertions apply to every machine unless machine is set.
package harness
