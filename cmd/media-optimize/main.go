package main

import (
	"fmt"
	"os"

	"github.com/Mikeyudex/erp-totalmotors/internal/cli"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc/cvwebp"
)

func main() {
	proc := imageproc.New(cvwebp.Option())
	if err := cli.NewRootCmd(proc).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
