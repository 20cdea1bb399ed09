package main

import "pump-dump-alerts/internal/cli"

func main() {
	cli.Execute()
}
