// SPDX-License-Identifier: MPL-2.0

// Package pod launches groups of containers sharing one network namespace.
//
// A pod owns the forwarded port space: its ports are reserved once and
// attached to the pod creation, while the member containers join the pod
// and never publish ports of their own. Pods exist only on engines that
// support them; requesting one elsewhere is a configuration error, not a
// degraded emulation.
package pod
