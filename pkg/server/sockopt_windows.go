//go:build windows

package server

func setSocketOptions(fd uintptr) error {
	return nil
}
