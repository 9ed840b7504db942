// SPDX-License-Identifier: MPL-2.0

// Package ports finds free host ports for declared container port
// forwardings.
//
// The kernel assigns the ports: each requested forwarding is bound to an
// ephemeral listening socket and the assigned port recorded. All sockets of
// a batch stay open until the whole batch is assigned, because the OS may
// hand a just-closed port straight back to the next bind. The whole window
// between reserving the ports and the engine actually binding them is
// guarded by a single cross-process lock so that two concurrent runs cannot
// be assigned the same port.
package ports
