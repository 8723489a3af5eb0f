package cli

import "fmt"

// CmdName names this CLI's default runtime files.
const CmdName = "vernier"

var (
	// DefaultReadySocket is where --ready-socket points unless overridden.
	DefaultReadySocket = fmt.Sprintf("/tmp/%s.sock", CmdName)
	// DefaultLogFile is the default log-file path. No command in this
	// CLI currently writes to it.
	DefaultLogFile = fmt.Sprintf("/tmp/%s.log", CmdName)
)
