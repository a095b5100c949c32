package main

import "github.com/viharnani/smart-home-monitoring/internal/cli"

func main() {
	cli.Execute()
}
