//go:build amd64
// +build amd64

package ppv2

import (
	"net"
	"runtime"

	"golang.org/x/sys/unix"
)

// Architecture-specific constants for AMD64.
const (
	archReadBufferSize  = 256 * 1024 // 256KB read buffer
	archWriteBufferSize = 256 * 1024 // 256KB write buffer

	// Aligned with the common page size on x86_64.
	archDefaultBufferSize = 4096
)

func initArchSpecific() {
	archGetOptimalBufferSize = amd64GetOptimalBufferSize
	archOptimizeConn = amd64OptimizeConn
}

func amd64GetOptimalBufferSize() int {
	if OSIsLinux {
		return archDefaultBufferSize
	}

	switch runtime.GOOS {
	case "darwin":
		return 16 * 1024
	case "windows":
		return 8 * 1024
	default:
		return 8 * 1024
	}
}

// amd64OptimizeConn applies AMD64-specific socket tuning to a UDP
// connection: larger kernel buffers on Linux, plus SO_REUSEPORT so the
// datagram pipeline can be scaled across multiple listener processes on
// the same port without a shared accept loop.
func amd64OptimizeConn(conn *net.UDPConn) {
	if OSIsLinux {
		conn.SetReadBuffer(archReadBufferSize)
		conn.SetWriteBuffer(archWriteBufferSize)

		if fd, err := getFd(conn); err == nil {
			unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	} else if runtime.GOOS == "darwin" {
		conn.SetReadBuffer(128 * 1024)
		conn.SetWriteBuffer(128 * 1024)
	} else if runtime.GOOS == "windows" {
		conn.SetReadBuffer(64 * 1024)
		conn.SetWriteBuffer(64 * 1024)
	}
}
