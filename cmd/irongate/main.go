package main

import "github.com/jmcleod/irongate/cmd/irongate/cmd"

func main() {
	cmd.Execute()
}
