//go:build unix

package mm

import "golang.org/x/sys/unix"

// mapArena obtains an anonymous, zero-filled mapping of length bytes
// via mmap, standing in for the contiguous physical range the boot
// loader hands the kernel on real hardware.
func mapArena(length uint64) ([]byte, func(), error) {
	arena, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	release := func() { _ = unix.Munmap(arena) }
	return arena, release, nil
}
