package main

import (
	"fmt"
	goruntime "runtime"
)

// Version is set at build time via ldflags
var Version = "v0.1.0"

// PrintVersion prints version information
func PrintVersion() {
	printBanner()
	fmt.Printf("verascope %s\n", Version)
	fmt.Printf("Runtime: %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
}
