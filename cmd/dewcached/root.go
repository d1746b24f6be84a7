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

// Command dewcached demonstrates the dewcache library end to end: it reads
// its configuration via viper, logs via pterm, and its get subcommand
// fetches the transformed output for one file through the cache.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	publicDirFlag  string
	maxWatchFlag   int
	clearEveryFlag string
	productionFlag bool
	verboseFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "dewcached",
	Short: "Incremental file-transform cache",
	Long: `dewcached drives an incremental file-transform cache: given a
source path it returns the transformed source, a source map, and a stable
content hash, short-circuiting on an unchanged input graph.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&publicDirFlag, "public-dir", ".", "root directory every dependency must resolve under")
	rootCmd.PersistentFlags().IntVar(&maxWatchFlag, "max-watch", 64, "maximum number of live filesystem watches")
	rootCmd.PersistentFlags().StringVar(&clearEveryFlag, "clear-every", "10s", "resolver cache clear interval")
	rootCmd.PersistentFlags().BoolVar(&productionFlag, "production", false, "pass production=true to the resolver and worker")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	_ = viper.BindPFlag("public-dir", rootCmd.PersistentFlags().Lookup("public-dir"))
	_ = viper.BindPFlag("max-watch", rootCmd.PersistentFlags().Lookup("max-watch"))
	_ = viper.BindPFlag("clear-every", rootCmd.PersistentFlags().Lookup("clear-every"))
	_ = viper.BindPFlag("production", rootCmd.PersistentFlags().Lookup("production"))
	viper.SetEnvPrefix("DEWCACHED")
	viper.AutomaticEnv()
}

// Execute runs the root command, exiting nonzero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
