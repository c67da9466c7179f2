package main

import "github.com/acostock/stocksuite/cmd"

func main() {
	cmd.Execute()
}
