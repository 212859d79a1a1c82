// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunServesObjectsEndpointUntilCanceled(t *testing.T) {
	logFile, logFormat, logSeverity = "", "text", "error"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"127.0.0.1:19182"}) }()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://127.0.0.1:19182/objects")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not exit after context cancellation")
	}
}

func TestRunRequiresAtLeastOneListenAddress(t *testing.T) {
	logFile, logFormat, logSeverity = "", "text", "error"

	err := run(context.Background(), nil)
	require.Error(t, err)
}

func TestListenAddrsFromPortArgs(t *testing.T) {
	addrs, err := listenAddrsFromPortArgs([]string{"9000", "9001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:9000", "127.0.0.1:9001"}, addrs)

	_, err = listenAddrsFromPortArgs([]string{"not-a-port"})
	assert.Error(t, err)
}
