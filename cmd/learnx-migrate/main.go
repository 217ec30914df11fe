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

// Command learnx-migrate connects and synchronizes the schema without
// seeding.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomoncle/learnx"
	"github.com/tomoncle/learnx/config"
	"github.com/tomoncle/learnx/database"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	force := flag.Bool("force", false, "drop and recreate every table (same as DB_FORCE_SYNC=true)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *force {
		cfg.Database.ForceSync = true
	}
	cfg.Seed.OnStartup = false

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := database.NewNamedLogger("learnx-migrate")
	result, err := learnx.Bootstrap(ctx, cfg, learnx.WithLogger(logger))
	if err != nil {
		logger.Error("Schema synchronization failed", "error", err)
		os.Exit(1)
	}
	defer result.Manager.Disconnect()

	for _, w := range result.Sync.Warnings {
		logger.Warn(w)
	}
	for table, cols := range result.Sync.Columns {
		logger.Debug("Table columns", "table", table, "columns", cols)
	}
}
