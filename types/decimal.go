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

package types

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
)

// Decimal is a fixed-point column read as float64. SQLite keeps a decimal
// with no fraction as an integer and PostgreSQL returns numeric as text, so
// Scan accepts both besides floats.
type Decimal float64

// Float64 returns d as a plain float.
func (d Decimal) Float64() float64 { return float64(d) }

// Round returns d rounded half away from zero to places digits.
func (d Decimal) Round(places int) Decimal {
	p := math.Pow(10, float64(places))
	return Decimal(math.Round(float64(d)*p) / p)
}

// Value implements driver.Valuer.
func (d Decimal) Value() (driver.Value, error) {
	return float64(d), nil
}

// Scan implements sql.Scanner.
func (d *Decimal) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Decimal(v)
	case float32:
		*d = Decimal(v)
	case int64:
		*d = Decimal(v)
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into Decimal", value)
	}
	return nil
}

func (d *Decimal) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	*d = Decimal(f)
	return nil
}
