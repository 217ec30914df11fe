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
	"fmt"
	"strings"
)

// IllegalName is returned by enum parsers for values they do not know.
const IllegalName = "unknown"

// StringEnum is a string-backed enumeration stored in a varchar column.
type StringEnum interface {
	~string
	IsValid() bool
}

// ParseEnum converts s into T. Matching is case-insensitive against the
// listed values; the canonical spelling of the match is returned.
func ParseEnum[T StringEnum](s string, values ...T) (T, error) {
	for _, v := range values {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%s value %q, expected one of %s", IllegalName, s, JoinEnum(values...))
}

// JoinEnum renders the values as "a|b|c".
func JoinEnum[T StringEnum](values ...T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, "|")
}
