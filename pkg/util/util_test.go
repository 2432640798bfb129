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

package util_test

import (
	"testing"

	"github.com/embeddedllm/mipod/pkg/util"
	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "HuggingFace model name",
			input:    "meta-llama/Llama-3.1-8B-Instruct",
			expected: "meta-llama-llama-3-1-8b-instruct",
		},
		{
			name:     "Already a slug",
			input:    "mistral-7b",
			expected: "mistral-7b",
		},
		{
			name:     "Only separators",
			input:    "///",
			expected: "",
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, util.Slugify(tt.input))
		})
	}
}

func TestRandomStringLowercase(t *testing.T) {
	s := util.RandomStringLowercase(10)
	assert.Len(t, s, 10)
	for _, r := range s {
		assert.True(t, r >= 'a' && r <= 'z')
	}
}

func TestMergeMaps(t *testing.T) {
	m1 := map[string]string{"a": "1", "b": "2"}
	m2 := map[string]string{"b": "3"}
	merged := util.MergeMaps(m1, m2)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, merged)
	// inputs untouched
	assert.Equal(t, "2", m1["b"])
}

func TestCopyMap(t *testing.T) {
	m := map[string]int{"a": 1}
	copied := util.CopyMap(m)
	copied["a"] = 2
	assert.Equal(t, 1, m["a"])
}

func TestGetKeys(t *testing.T) {
	keys := util.GetKeys(map[string]int{"a": 1}, map[string]int{"a": 2, "b": 3})
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestMax(t *testing.T) {
	assert.Equal(t, 2, util.Max(1, 2))
	assert.Equal(t, 2, util.Max(2, 1))
	assert.Equal(t, "b", util.Max("a", "b"))
}
