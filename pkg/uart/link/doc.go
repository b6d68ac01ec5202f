// Package link provides byte links for the uart protocol session:
// serial ports, TCP and websocket tunnels, and in-memory pairs.
//
// Blocking transports are adapted by a background reader which only
// stores received bytes into a Ring, like a receive interrupt would.
// The protocol session drains the Ring from the polling goroutine.
package link
