// SPDX-License-Identifier: MPL-2.0

// ocibox launches declarative container and pod specifications against a
// local podman or docker engine and guarantees their teardown.
package main

func main() {
	Execute()
}
