package main

import (
	"voxpro/cmd"
)

func main() {
	cmd.Execute()
}
