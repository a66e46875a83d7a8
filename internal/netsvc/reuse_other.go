//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package netsvc

import "syscall"

// no SO_REUSEPORT here
func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
