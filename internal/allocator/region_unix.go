//go:build unix

package allocator

import "golang.org/x/sys/unix"

func reserveMemory(size uintptr) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func releaseMemory(raw []byte) error {
	return unix.Munmap(raw)
}

func pageSize() uintptr {
	return uintptr(unix.Getpagesize())
}
