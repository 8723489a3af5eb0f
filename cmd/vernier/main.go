package main

import "github.com/jhawthorn/vernier/internal/cli"

func main() {
	cli.Execute()
}
