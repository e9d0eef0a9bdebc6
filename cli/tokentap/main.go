package main

import (
	"fmt"
	"os"

	"github.com/tokentap/tokentap/cmd/tokentap"
)

func main() {
	cmd := tokentap.NewRootCmd()

	if err := cmd.Execute(); err != nil {
		fmt.Printf("Error executing root command: %v\n", err)
		os.Exit(1)
	}
}
