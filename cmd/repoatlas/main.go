// Command repoatlas analyzes a GitHub user's repositories with a gated
// multi-stage generation pipeline and renders the result as a PDF report.
package main

import "os"

func main() {
	os.Exit(execute())
}
