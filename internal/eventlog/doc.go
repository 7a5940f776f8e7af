// Package eventlog provides the append-only, line-oriented event log each
// machine writes, one entry per tick.
//
// # Line Format
//
//	<unix-seconds> | <KIND> | LC: <logical-clock> | <detail>
//
// KIND is one of INIT, INTERNAL, RECEIVE, SEND. The INIT entry is written
// once before the event loop starts and carries "ClockRate: <n>". RECEIVE
// entries carry "From: <id>, QueueLen: <n>" where QueueLen is the inbox
// depth immediately after the dequeue that produced the entry.
//
// Entries are written with a single write call and are visible to a
// concurrent reader (for example an analysis process tailing the file) as
// soon as Append returns. Nothing in this package rewrites or removes an
// entry; Clean exists for callers preparing a fresh run directory.
package eventlog
