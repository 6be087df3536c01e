// Command tripshare は旅行共有APIサーバーとワーカーを起動する。
//
//	tripshare [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/tripshare/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tripshare: %v\n", err)
		os.Exit(1)
	}
}
