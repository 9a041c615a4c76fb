// Command fabric-task runs a task worker and manages partitions and service
// endpoints in the coordination store.
//
// Usage:
//
//	fabric-task run --config worker.yaml
//	fabric-task partitions put --bucket fabric-partitions --path tasks.orders p1 region=eu
//	fabric-task service register billing http://10.0.0.7:8080
//	fabric-task service call billing /healthz --strategy round-robin
package main

import (
	"fmt"
	"os"

	"github.com/arloliu/fabric/cmd/fabric-task/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
