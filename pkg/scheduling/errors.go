/*
 * Copyright 2024 Embedded LLM.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package scheduling

import (
	"fmt"
)

type errorCode string

const (
	errorCodeValidation           errorCode = "validation-error"
	errorCodeUnschedulable        errorCode = "unschedulable"
	errorCodeInsufficientCapacity errorCode = "insufficient-capacity"
	errorCodeInconsistentState    errorCode = "inconsistent-state"
	errorCodeNotFound             errorCode = "not-found"
)

var (
	// ValidationErr rejects a malformed or infeasible spec. Never retried.
	ValidationErr = errorImpl{code: errorCodeValidation}
	// UnschedulableErr means no placement exists given current inventory.
	UnschedulableErr = errorImpl{code: errorCodeUnschedulable}
	// InsufficientCapacityErr means a reservation lost a race during commit.
	InsufficientCapacityErr = errorImpl{code: errorCodeInsufficientCapacity}
	// InconsistentStateErr flags an invariant violation. Fatal for the node.
	InconsistentStateErr = errorImpl{code: errorCodeInconsistentState}
	// NotFoundErr means the referenced deployment or node does not exist.
	NotFoundErr = errorImpl{code: errorCodeNotFound}
)

type Error interface {
	error
	IsValidation() bool
	IsUnschedulable() bool
	IsInsufficientCapacity() bool
	IsInconsistentState() bool
	IsNotFound() bool
}

type errorImpl struct {
	code errorCode
	err  error
}

func (e errorImpl) Error() string {
	return fmt.Sprintf("[code: %s  err: %s]", e.code, e.err.Error())
}

func (e errorImpl) IsValidation() bool {
	return e.code == errorCodeValidation
}

func (e errorImpl) IsUnschedulable() bool {
	return e.code == errorCodeUnschedulable
}

func (e errorImpl) IsInsufficientCapacity() bool {
	return e.code == errorCodeInsufficientCapacity
}

func (e errorImpl) IsInconsistentState() bool {
	return e.code == errorCodeInconsistentState
}

func (e errorImpl) IsNotFound() bool {
	return e.code == errorCodeNotFound
}

func (e errorImpl) Errorf(format string, args ...any) Error {
	e.err = fmt.Errorf(format, args...)
	return e
}

func IsValidation(err error) bool {
	return hasCode(err, func(e Error) bool { return e.IsValidation() })
}

func IsUnschedulable(err error) bool {
	return hasCode(err, func(e Error) bool { return e.IsUnschedulable() })
}

func IsInsufficientCapacity(err error) bool {
	return hasCode(err, func(e Error) bool { return e.IsInsufficientCapacity() })
}

func IsInconsistentState(err error) bool {
	return hasCode(err, func(e Error) bool { return e.IsInconsistentState() })
}

func IsNotFound(err error) bool {
	return hasCode(err, func(e Error) bool { return e.IsNotFound() })
}

func hasCode(err error, match func(Error) bool) bool {
	if err == nil {
		return false
	}
	schedErr, ok := err.(Error)
	if !ok {
		return false
	}
	return match(schedErr)
}
