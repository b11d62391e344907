//go:build windows

package allocator

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func reserveMemory(size uintptr) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func releaseMemory(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}

	return windows.VirtualFree(uintptr(unsafe.Pointer(&raw[0])), 0, windows.MEM_RELEASE)
}

func pageSize() uintptr {
	var si windows.SystemInfo
	windows.GetSystemInfo(&si)

	return uintptr(si.PageSize)
}
