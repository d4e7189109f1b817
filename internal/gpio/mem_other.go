//go:build !linux

package gpio

import "fmt"

func openMem(device string) (Driver, error) {
	return nil, fmt.Errorf("gpio device %s: memory-mapped gpio requires linux (set gpio.simulate)", device)
}
