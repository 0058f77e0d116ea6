package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/app"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, app.BuildRoot())
	stop()
	os.Exit(code)
}
