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

package api

// DefaultServingEnv returns the ROCm/vLLM environment applied to every
// serving pod unless overridden by the deployment spec.
func DefaultServingEnv() map[string]string {
	return map[string]string{
		"VLLM_USE_TRITON_FLASH_ATTN":                 "false",
		"VLLM_ROCM_USE_AITER":                        "true",
		"VLLM_ROCM_USE_AITER_LINEAR":                 "true",
		"VLLM_ROCM_USE_AITER_MOE":                    "true",
		"VLLM_ROCM_USE_AITER_FP8_BLOCK_SCALED_MOE":   "false",
		"VLLM_ROCM_USE_AITER_RMSNORM":                "true",
		"VLLM_WORKER_MULTIPROC_METHOD":               "spawn",
		"VLLM_IMAGE_FETCH_TIMEOUT":                   "5",
		"VLLM_VIDEO_FETCH_TIMEOUT":                   "30",
		"VLLM_AUDIO_FETCH_TIMEOUT":                   "10",
		"VLLM_RPC_TIMEOUT":                           "10000",
	}
}
