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

// Command learnx-seed connects, synchronizes the schema and loads the
// baseline data set plus any SQL seed files.
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
	sqlPath := flag.String("sql", "", "directory of SQL seed files, overrides SEED_SQL_PATH")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *sqlPath != "" {
		cfg.Seed.SQLPath = *sqlPath
	}
	cfg.Seed.OnStartup = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := database.NewNamedLogger("learnx-seed")
	result, err := learnx.Bootstrap(ctx, cfg, learnx.WithLogger(logger))
	if err != nil {
		logger.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
	if err := result.Manager.Disconnect(); err != nil {
		logger.Warn("Failed to release database handle", "error", err)
	}

	logger.Info("Seeding completed",
		"users", result.Seed.Count("user"),
		"courses", result.Seed.Count("course"),
		"enrollments", result.Seed.Count("enrollment"),
		"created", result.Seed.Created(),
		"sql_files", len(result.Seed.SQLFiles))
}
