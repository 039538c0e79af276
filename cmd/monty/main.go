package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"monty/internal/shutdown"
)

func main() {
	sh := shutdown.New(context.Background())
	sh.Listen()

	cmd := newRootCommand(sh)
	err := cmd.ExecuteContext(sh.Context())
	sh.Shutdown()
	sh.Wait()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		}
		os.Exit(1)
	}
}
