// Command story-crawler runs the truyenfull crawler service and batch CLI.
package main

import "github.com/JakeFAU/story-crawler/cmd"

func main() {
	cmd.Execute()
}
