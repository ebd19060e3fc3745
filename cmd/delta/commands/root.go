package commands

import (
	"github.com/mosaicnetworks/delta/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for delta
var RootCmd = &cobra.Command{
	Use:              "delta",
	Short:            "delta consensus",
	TraverseChildren: true,
}
