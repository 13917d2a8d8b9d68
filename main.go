// Package main is the entry point for the solarwatch application
package main

import (
	"github.com/solarwatch/solarwatch/cmd"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	cmd.Execute()
}
