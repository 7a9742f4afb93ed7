package main

import "github.com/amirkhaki/lockstep/cmd/lockstep/cmd"

func main() {
	cmd.Execute()
}
