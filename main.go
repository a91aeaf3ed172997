// Package main is the entry point of the IP lookup service.
package main

import (
	"os"

	"github.com/gtriggiano/ip-lookup-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
