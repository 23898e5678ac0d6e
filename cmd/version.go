package cmd

import (
	"fmt"
	"io"

	"grimm.is/tollgate/internal/brand"
)

// RunVersion prints build information.
func RunVersion(out io.Writer) {
	fmt.Fprintf(out, "%s %s (commit %s, built %s)\n", brand.BinaryName, brand.Version, brand.GitCommit, brand.BuildTime)
}
