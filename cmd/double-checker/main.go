package main

import (
	"context"
	"fmt"
	"os"

	"github.com/LightningDocs/monthly-double-checker-v2/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
