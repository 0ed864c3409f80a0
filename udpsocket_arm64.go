//go:build arm64
// +build arm64

package ppv2

import (
	"net"
	"runtime"

	"golang.org/x/sys/unix"
)

// Architecture-specific constants for ARM64.
const (
	archReadBufferSize  = 128 * 1024 // 128KB read buffer
	archWriteBufferSize = 128 * 1024 // 128KB write buffer

	archDefaultBufferSize = 4096
)

func initArchSpecific() {
	archGetOptimalBufferSize = arm64GetOptimalBufferSize
	archOptimizeConn = arm64OptimizeConn
}

func arm64GetOptimalBufferSize() int {
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

// arm64OptimizeConn applies ARM64-specific socket tuning. ARM64 often
// benefits from different buffer sizes than AMD64 due to different cache
// behavior; SO_REUSEPORT is set the same way for multi-listener scale-out.
func arm64OptimizeConn(conn *net.UDPConn) {
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
