package main

import (
	"os"

	"cxcli/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
