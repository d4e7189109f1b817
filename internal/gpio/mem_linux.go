//go:build linux

package gpio

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BCM283x GPIO register word offsets within the /dev/gpiomem window.
const (
	regFSEL0  = 0
	regSET0   = 7
	regCLR0   = 10
	maxLine   = 53
	blockSize = 4096
)

// memDriver pokes the GPIO block directly. mu guards the mapping against
// Close.
type memDriver struct {
	mu   sync.Mutex
	mem  []byte
	regs []uint32
}

func openMem(device string) (Driver, error) {
	file, err := os.OpenFile(device, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio device %s: %w", device, err)
	}
	defer file.Close()

	mem, err := unix.Mmap(int(file.Fd()), 0, blockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap gpio device %s: %w", device, err)
	}
	regs := unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), blockSize/4)
	return &memDriver{mem: mem, regs: regs}, nil
}

func (d *memDriver) ConfigureOutput(pin int) error {
	if pin < 0 || pin > maxLine {
		return fmt.Errorf("gpio line %d out of range", pin)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.regs == nil {
		return ErrClosed
	}
	reg := regFSEL0 + pin/10
	shift := uint(pin%10) * 3
	d.regs[reg] = (d.regs[reg] &^ (7 << shift)) | (1 << shift)
	return nil
}

func (d *memDriver) SetPin(pin int, high bool) error {
	if pin < 0 || pin > maxLine {
		return fmt.Errorf("gpio line %d out of range", pin)
	}
	reg := regCLR0
	if high {
		reg = regSET0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.regs == nil {
		return ErrClosed
	}
	d.regs[reg+pin/32] = 1 << uint(pin%32)
	return nil
}

func (d *memDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mem == nil {
		return nil
	}
	err := unix.Munmap(d.mem)
	d.mem = nil
	d.regs = nil
	if err != nil {
		return fmt.Errorf("munmap gpio: %w", err)
	}
	return nil
}
