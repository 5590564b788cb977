package main

import (
	"JamFM/cmd"
)

func main() {
	cmd.Execute()
}
