package portname

import (
	"io"
	"log"
	"os"
)

var logger *log.Logger

func init() {
	logger = log.New(os.Stderr, "[portname] ", log.Flags())
}

// SetLogOutput redirects the package's log messages, io.Discard silences them
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}
