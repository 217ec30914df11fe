/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command learnx-provision creates the configured server database when it
// does not exist yet and reports its size and tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomoncle/learnx/config"
	"github.com/tomoncle/learnx/database"
	"github.com/tomoncle/learnx/provision"
	"github.com/tomoncle/learnx/utils"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	name := flag.String("name", "", "database name, overrides DB_NAME")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	utils.ConfigureLogLevel(cfg.LogLevel)
	utils.ConfigureLogFormat(cfg.LogFormat)
	logger := database.NewNamedLogger("learnx-provision")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc := cfg.ConnectionConfig()
	if *name != "" {
		cc.DBName = *name
	}
	if !provision.Provision(ctx, cc, provision.WithLogger(logger)) {
		os.Exit(1)
	}
}
