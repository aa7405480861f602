package main

import (
	"propwatch-backend/cmd/monitor/commands"
	"propwatch-backend/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
