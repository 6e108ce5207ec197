package nutrilog

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// DumpWriter is where Dump writes. The CLI points it at stderr so stdout stays machine readable.
var DumpWriter io.Writer = os.Stderr

// Dump pretty-prints values prefixed with the caller's location.
func Dump(v ...any) {
	_, file, line, _ := runtime.Caller(1)
	fmt.Fprintf(DumpWriter, "%s:%d:\n", file, line)
	dumpConfig.Fdump(DumpWriter, v...)
}
