// Package main provides the entry point for the harvestd CLI.
//
// harvestd runs resumable batch harvesting sessions against rate-limited
// sources, pacing all requests through a shared anti-detection limiter.
//
// Usage:
//
//	harvestd run --source api item1 item2
//	harvestd run --session <id>
//	harvestd status <session-id>
//
// See --help for all available options.
package main

// main is the entry point for harvestd.
func main() {
	Execute()
}
