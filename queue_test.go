/*
Copyright 2025 Nordvend Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nordvend/pant/config"
)

func TestLaneForSplitsOnThreshold(t *testing.T) {
	cfg := &config.Configuration{
		Pipeline: config.PipelineConfig{BigFileThreshold: 50 * 1024},
		Queue: config.QueueConfig{
			TransactionQueue: "in_queue",
			BigFileQueue:     "in_queue_big_files",
		},
	}

	assert.Equal(t, "in_queue", laneFor(cfg, 0))
	assert.Equal(t, "in_queue", laneFor(cfg, 50*1024))
	assert.Equal(t, "in_queue_big_files", laneFor(cfg, 50*1024+1))
}
