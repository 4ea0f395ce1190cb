// Command relaygate runs the MCP aggregation gateway.
package main

import "github.com/relaygate/gateway/cmd/relaygate/cmd"

func main() {
	cmd.Execute()
}
