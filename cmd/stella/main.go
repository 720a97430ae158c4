package main

import "github.com/dyike/stella/internal/cli"

func main() {
	cli.Run()
}
