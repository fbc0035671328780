package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/studyhall/chatsync/internal/account"
	"github.com/studyhall/chatsync/internal/daemon"
)

func main() {
	accountFlag := flag.String("account", "", "account name (overrides config default)")
	configFlag := flag.String("config", "", "config file path (default ~/.chatsync/config.toml)")
	flag.Parse()

	name := account.Resolve(*accountFlag)
	if err := account.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Account: name, ConfigPath: *configFlag}),
	)

	app.Run()
}
