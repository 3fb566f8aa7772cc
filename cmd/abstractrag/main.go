package main

import "abstractrag/internal/cli"

func main() {
	cli.Execute()
}
