package main

import (
	"fare-deal-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
