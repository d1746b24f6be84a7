/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/dewcache"
	"bennypowers.dev/dewcache/dewengine"
	"bennypowers.dev/dewcache/internal/cachelog"
	"bennypowers.dev/dewcache/internal/platform"
	"bennypowers.dev/dewcache/pool"
	"bennypowers.dev/dewcache/resolver"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Fetch the transformed output for a single file",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	log := cachelog.NewPtermLogger(verboseFlag)

	clearEvery, err := time.ParseDuration(viper.GetString("clear-every"))
	if err != nil {
		return fmt.Errorf("parsing --clear-every: %w", err)
	}

	cfg := dewcache.Config{
		PublicDir:          viper.GetString("public-dir"),
		CacheClearInterval: clearEvery,
		MaxWatchCount:      viper.GetInt("max-watch"),
		Production:         viper.GetBool("production"),
	}

	fs := platform.NewOSFileSystem()
	clock := platform.NewRealTimeProvider()

	peers := make([]pool.Peer, runtime.NumCPU())
	for i := range peers {
		peers[i] = dewengine.NewEsbuildPeer()
	}
	workerPool := pool.NewWorkerPool(peers)

	res := resolver.NewFacade(&naiveResolver{}, cfg.CacheClearInterval, clock)
	defer res.Dispose()

	newWatcher := func() (platform.FileWatcher, error) {
		return platform.NewFSNotifyFileWatcher()
	}

	coord := dewcache.NewCoordinator(cfg, res, workerPool, fs, clock, newWatcher, nil, log)
	defer coord.Dispose()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	resp, err := coord.Get(ctx, args[0], "")
	if err != nil {
		return err
	}

	switch resp.Outcome {
	case dewcache.OutcomeAbsent:
		pterm.Warning.Println("this variant needs no transform; request the sibling variant")
	case dewcache.OutcomeNotModified:
		pterm.Info.Printfln("not modified (hash %s)", resp.Result.Hash)
	default:
		fmt.Fprintln(os.Stdout, string(resp.Result.Source))
		pterm.Success.Printfln("hash %s", resp.Result.Hash)
	}
	return nil
}
