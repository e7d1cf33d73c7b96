package main

import (
	"syscall"
)

func getKernelVersion() string {
	var uts syscall.Utsname
	syscall.Uname(&uts)
	b := make([]byte, 0, len(uts.Release))
	for _, v := range uts.Release {
		if v == 0x00 {
			break
		}
		b = append(b, byte(v))
	}
	return string(b)
}
