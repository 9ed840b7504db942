// SPDX-License-Identifier: MPL-2.0

// Package volume declares container storage sources and provisions them.
//
// Two variants exist: engine-managed named volumes and bind mounts of host
// directories. Both are declared up front on a container spec and validated
// at declaration time; the backing resource only comes to life through a
// provisioner during the container launch and is released again on
// teardown, in reverse acquisition order.
package volume
