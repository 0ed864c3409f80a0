//go:build !amd64 && !arm64
// +build !amd64,!arm64

package ppv2

import (
	"net"
	"runtime"

	"golang.org/x/sys/unix"
)

// Conservative buffer sizes for unknown architectures.
const (
	archReadBufferSize  = 64 * 1024
	archWriteBufferSize = 64 * 1024

	archDefaultBufferSize = 4096
)

func initArchSpecific() {
	archGetOptimalBufferSize = genericGetOptimalBufferSize
	archOptimizeConn = genericOptimizeConn
}

func genericGetOptimalBufferSize() int {
	switch runtime.GOOS {
	case "linux":
		return 8 * 1024
	case "darwin":
		return 8 * 1024
	case "windows":
		return 4 * 1024
	default:
		return 4 * 1024
	}
}

// genericOptimizeConn applies conservative socket tuning on architectures
// without a dedicated implementation.
func genericOptimizeConn(conn *net.UDPConn) {
	switch runtime.GOOS {
	case "linux":
		conn.SetReadBuffer(archReadBufferSize)
		conn.SetWriteBuffer(archWriteBufferSize)
		if fd, err := getFd(conn); err == nil {
			unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	default:
		conn.SetReadBuffer(32 * 1024)
		conn.SetWriteBuffer(32 * 1024)
	}
}
