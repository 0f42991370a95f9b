package main

import "github.com/mgpai22/equibasket/internal/cli"

func main() {
	cli.Execute()
}
