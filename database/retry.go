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

// RetryDecision tells the caller of Authenticate what to do next.
type RetryDecision int

const (
	// DecisionHealthy means the database answered.
	DecisionHealthy RetryDecision = iota
	// DecisionFallback means a server dialect refused every attempt and the
	// caller may downgrade to the embedded dialect.
	DecisionFallback
	// DecisionFail means no retry or downgrade can help.
	DecisionFail
)

func (d RetryDecision) String() string {
	switch d {
	case DecisionHealthy:
		return "healthy"
	case DecisionFallback:
		return "fallback"
	default:
		return "fail"
	}
}

// AuthResult is the outcome of one Authenticate call.
type AuthResult struct {
	Dialect  Dialect
	Target   string
	Attempts int
	Kind     ConnectionErrorKind
	Decision RetryDecision
	Err      error
}

// AsError converts an unhealthy result into a *ConnectionError.
func (r *AuthResult) AsError() error {
	if r == nil || r.Decision == DecisionHealthy {
		return nil
	}
	kind := r.Kind
	if kind == "" {
		kind = ClassifyConnectionError(r.Err)
	}
	return &ConnectionError{
		Kind:     kind,
		Dialect:  r.Dialect,
		Target:   r.Target,
		Attempts: r.Attempts,
		Err:      r.Err,
	}
}

func decide(r *AuthResult) RetryDecision {
	if r.Err == nil {
		return DecisionHealthy
	}
	if r.Kind == ConnRefused && !r.Dialect.IsEmbedded() {
		return DecisionFallback
	}
	return DecisionFail
}
