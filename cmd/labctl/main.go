package main

import (
	"fmt"
	"os"

	"github.com/sitefed/labwork/cmd/labctl/commands"
	"github.com/sitefed/labwork/internal/cliexit"
)

func main() {
	err := commands.NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cliexit.Code(err))
}
