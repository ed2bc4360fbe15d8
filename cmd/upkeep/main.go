package main

import "github.com/oshokin/upkeep/cmd/upkeep/cmd"

func main() {
	cmd.Execute()
}
