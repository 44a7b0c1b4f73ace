package main

import "github.com/nhle/agriassist/internal/cli"

func main() {
	cli.Execute()
}
