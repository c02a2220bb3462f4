package main

import "github.com/oshokin/dyst/cmd/dyst/cmd"

func main() {
	cmd.Execute()
}
