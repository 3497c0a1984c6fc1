// Command donactl runs operator tasks against the donation market database.
package main

import "github.com/iliyamo/donation-market/cmd/donactl/commands"

func main() {
	commands.Execute()
}
