// Package server implements the transport front-ends of the GoChat relay.
//
// Two front-ends share one command vocabulary: a raw socket listener speaking
// length-prefixed frames (tcp.go) and a WebSocket endpoint (client.go,
// handlers.go). Both register every connection with the relay coordinator
// and pump its messages back to the peer. A heartbeat monitor per connection
// drops silent peers. Configuration, origin checks, routing and rate limiting
// live in their own files.
package server
