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

package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrProgressOutOfRange = errors.New("progress must be between 0 and 100")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrMissingInstructor  = errors.New("course has no instructor")
)

// ValidationError reports the first invalid field of a model.
type ValidationError struct {
	Model string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s.%s: %v", e.Model, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(model, field, format string, args ...interface{}) error {
	return &ValidationError{Model: model, Field: field, Err: fmt.Errorf(format, args...)}
}

// clock is swapped by tests.
var clock = func() time.Time { return time.Now().UTC() }

func touch(created, updated *time.Time) {
	now := clock()
	if created != nil && created.IsZero() {
		*created = now
	}
	*updated = now
}
