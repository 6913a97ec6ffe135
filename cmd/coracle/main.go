package main

import (
	"collateral-oracle/internal/cli"
)

func main() {
	cli.Execute()
}
