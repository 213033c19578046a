// Command powerctl runs the power and wireless control core of a
// button-operated peripheral and reports its state over MQTT and HTTP.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
