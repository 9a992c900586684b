// Command ranping runs end-to-end ping scenarios against a cellular testbed.
package main

import "github.com/dantte-lp/ranping/cmd/ranping/commands"

func main() {
	commands.Execute()
}
