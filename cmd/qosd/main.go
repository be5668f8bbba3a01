// qosd is the adaptive QoS bandwidth controller daemon.
package main

import (
	"os"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/cmd/qosd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
