// Command segment-demo serves the interactive box-prompt segmentation page.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
