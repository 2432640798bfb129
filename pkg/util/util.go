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

package util

import (
	"math/rand"
	"strings"

	"golang.org/x/exp/constraints"
)

const (
	lowercaseLetters = "abcdefghijklmnopqrstuvwxyz"
)

func RandomStringLowercase(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = lowercaseLetters[rand.Int63()%int64(len(lowercaseLetters))]
	}
	return string(b)
}

// Slugify turns an arbitrary identifier (e.g. a HuggingFace model name) into
// a lowercase dash-separated token usable as a deployment id prefix.
func Slugify(s string) string {
	s = strings.ToLower(s)
	var sb strings.Builder
	lastDash := true
	for _, r := range s {
		isAllowed := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAllowed {
			sb.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			sb.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(sb.String(), "-")
}

func GetKeys[K comparable, V any](maps ...map[K]V) []K {
	var set = make(map[K]struct{})
	for _, m := range maps {
		for k := range m {
			set[k] = struct{}{}
		}
	}
	var res = make([]K, 0, len(set))
	for k := range set {
		res = append(res, k)
	}
	return res
}

func CopyMap[K comparable, V any](m map[K]V) map[K]V {
	var res = make(map[K]V, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

// MergeMaps merges the provided maps left to right, later maps win.
func MergeMaps[K comparable, V any](maps ...map[K]V) map[K]V {
	var res = make(map[K]V)
	for _, m := range maps {
		for k, v := range m {
			res[k] = v
		}
	}
	return res
}

func Max[K constraints.Ordered](v1 K, v2 K) K {
	if v1 > v2 {
		return v1
	}
	return v2
}
