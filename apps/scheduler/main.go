package main

import (
	"github.com/smallbiznis/stockledger/internal/app"
	"github.com/smallbiznis/stockledger/internal/sweep"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		app.Core,

		// No server module!
		sweep.SchedulerModule,
	).Run()
}
