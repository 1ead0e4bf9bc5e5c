// Package stream pushes progress updates to websocket clients.
//
// Every message is an EventMessage. A newly connected client first receives a
// "snapshot" event holding all tracked records keyed by name, then one
// "progress" event per state change with the record as data. Seq increases
// by one per encoded message across all clients.
package stream
