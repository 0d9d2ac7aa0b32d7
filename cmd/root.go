// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/spf13/cobra"
)

var ctx *log.Logger

var logFile *os.File

// Execute is called by main.go
func Execute() {
	if err := BridgeCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	BridgeCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Location of the config file (yaml, json or toml)")
}
