package main

import (
	"github.com/smallbiznis/stockledger/internal/app"
	"github.com/smallbiznis/stockledger/internal/server"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		app.Core,
		server.Module,
	).Run()
}
