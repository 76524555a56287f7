package main

import "github.com/khanhnv2901/pagescope/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
