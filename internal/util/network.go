// Package util provides small networking helpers shared across meshtalk.
package util

import (
	"net"
	"strconv"
	"strings"
)

// SplitHostPort splits a network address into host and port. Unlike
// net.SplitHostPort, an address without a port yields the address as host
// with port 0.
func SplitHostPort(addr string) (host string, port int, err error) {
	h, p, splitErr := net.SplitHostPort(addr)
	if splitErr == nil {
		portNum, parseErr := strconv.Atoi(p)
		if parseErr != nil {
			return "", 0, parseErr
		}
		return h, portNum, nil
	}

	if strings.Contains(splitErr.Error(), "missing port") {
		return addr, 0, nil
	}

	return "", 0, splitErr
}

// JoinHostPort joins a host and port into a network address.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// IsLocalAddress checks if an address is a local/loopback address.
func IsLocalAddress(addr string) bool {
	host, _, _ := SplitHostPort(addr)
	if host == "" {
		host = addr
	}

	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	return ip.IsLoopback() || ip.IsUnspecified()
}

// GetOutboundIP returns the preferred outbound IP of this machine. The
// dial never sends a packet; it only selects the interface the kernel
// would route through.
func GetOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP, nil
}
