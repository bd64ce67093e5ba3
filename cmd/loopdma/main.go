// The loopdma command brings up a loopback DMA system and pushes traffic
// through it, mirroring the classic open-write-read-compare smoke test
// against the character device.
package main

import "github.com/ringlab/loopdma/cmd/loopdma/cmd"

func main() {
	cmd.Execute()
}
