// Package main is the entry point for the ci-harness CLI.
package main

import (
	"errors"
	"os"
)

func main() {
	err := Execute()
	if err == nil {
		return
	}
	var ec exitCodeError
	if errors.As(err, &ec) {
		os.Exit(ec.code)
	}
	os.Exit(1)
}
