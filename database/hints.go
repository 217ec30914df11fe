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

package database

import "fmt"

// RemediationHints returns operator-facing suggestions for a failed
// connection attempt.
func RemediationHints(kind ConnectionErrorKind, cfg *ConnectionConfig) []string {
	dialect := cfg.ResolveDialect()
	server := "PostgreSQL"
	if dialect == DialectMySQL {
		server = "MySQL"
	}
	switch kind {
	case ConnRefused:
		return []string{
			fmt.Sprintf("%s is not accepting connections on %s:%d", server, cfg.Host, cfg.Port),
			fmt.Sprintf("make sure %s is installed and running (e.g. `sudo service %s start` or `brew services start %s`)",
				server, serviceName(dialect), serviceName(dialect)),
			"or use the embedded database instead by setting DB_DIALECT=sqlite",
		}
	case ConnAuthRejected:
		return []string{
			fmt.Sprintf("credentials for user %q were rejected", cfg.Username),
			"check DB_USER and DB_PASSWORD",
			fmt.Sprintf("create the role if it is missing (e.g. `createuser -s %s`)", cfg.Username),
		}
	case ConnUnknownDatabase:
		return []string{
			fmt.Sprintf("database %q does not exist on the server", cfg.DBName),
			"create it with `learnx-provision` or unset DB_NAME to use the embedded database",
		}
	case ConnUnreachable:
		return []string{
			fmt.Sprintf("host %s could not be reached", cfg.Host),
			"check DB_HOST, DB_PORT and network access to the server",
		}
	default:
		return nil
	}
}

func serviceName(d Dialect) string {
	if d == DialectMySQL {
		return "mysql"
	}
	return "postgresql"
}
