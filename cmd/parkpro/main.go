package main

import (
	"context"

	"parkpro-backend/cmd/parkpro/commands"
	"parkpro-backend/lib/util/serviceutil"

	_ "time/tzdata"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext(context.Background()))
}
