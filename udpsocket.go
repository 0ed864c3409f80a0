package ppv2

import (
	"net"
	"runtime"
)

// Set once during init time
var (
	// OSIsLinux is true if the current OS is Linux, where SO_REUSEPORT is
	// available for multi-listener scale-out.
	OSIsLinux = runtime.GOOS == "linux"

	// Architecture-specific function pointers, populated by initArchSpecific.
	archGetOptimalBufferSize func() int
	archOptimizeConn         func(*net.UDPConn)
)

func init() {
	initArchSpecific()
}

// OptimalBufferSize returns the read buffer size this architecture/OS combo
// tunes Receive's caller-supplied buffer to.
func OptimalBufferSize() int {
	return archGetOptimalBufferSize()
}

// OptimizeUDPConn applies architecture- and OS-specific socket buffer tuning
// to conn. Callers typically do this once, right after dialing or listening,
// before handing the connection to NewEndpoint.
func OptimizeUDPConn(conn *net.UDPConn) {
	archOptimizeConn(conn)
}

// getFd extracts the file descriptor backing conn, for low-level
// setsockopt calls not exposed by net.UDPConn itself.
func getFd(conn *net.UDPConn) (int, error) {
	file, err := conn.File()
	if err != nil {
		return -1, err
	}
	defer file.Close()

	return int(file.Fd()), nil
}
