// Package machine implements one simulated machine: a tick-driven event loop
// around a Lamport clock, an inbound message queue and a TCP transport.
//
// # Event Loop
//
// Run executes one Step per tick and then sleeps for whatever remains of
// the tick interval (1/ClockRate seconds). Each Step produces exactly one
// clock-affecting transition and exactly one event-log entry:
//
//  1. A queued message, if any, is received: clock = max(clock, msg) + 1.
//     Receiving always wins over generating a new event.
//  2. Otherwise a uniform draw below InternalProb is an internal event:
//     clock = clock + 1.
//  3. Otherwise the machine sends. With no peers it falls back to an
//     internal event logged as "no peers". With one peer it sends to it.
//     With several, it picks a Target (first peer by id, second peer by id,
//     or all peers), sends its pre-increment clock to each recipient, then
//     advances the clock once regardless of how many recipients there were.
//
// # Concurrency
//
// The event loop is the only goroutine that mutates the clock. Transport
// handler goroutines only enqueue into the inbox. Neither the clock nor the
// inbox lock is held across I/O or the pacing sleep.
//
// # Shutdown
//
// Run returns when its context is cancelled, observed between ticks. It
// then closes the transport, the inbox and the event log. Messages still
// queued or in flight are dropped; the final log state is best-effort.
package machine
