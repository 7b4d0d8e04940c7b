package main

import "github.com/pic18kit/ld18/cmd"

func main() {
	cmd.Execute()
}
