package main

import (
	"log"

	"github.com/prdiff/prdiff/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("prdiff: %v", err)
	}
}
