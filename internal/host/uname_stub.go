//go:build !linux

package host

func kernelRelease() string { return "" }
