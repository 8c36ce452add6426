// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzajic/go-skynode/config"
)

func TestPollOnce_fakes(t *testing.T) {
	s := fakeSensors()
	r := pollOnce(s, config.Default(), false)
	require.NotNil(t, r.Env)
	require.NotNil(t, r.Light)
	require.NotNil(t, r.Thermal)
	assert.True(t, r.Thermal.Valid)
	// The fakes produce a plausible daylight signal, so the SQM chain
	// runs end to end.
	require.NotNil(t, r.SQM)
	assert.True(t, r.SQM.Valid)
	// Fake sky is deep cold; well below the cloud threshold.
	require.NotNil(t, r.Cloud)
	assert.False(t, r.Cloud.Cloudy)
	assert.Less(t, r.Cloud.SkyAmbientDelta, float32(0))
}

func TestCSVLog(t *testing.T) {
	dir := t.TempDir()
	l, err := newCSVLog(dir)
	require.NoError(t, err)
	defer l.close()

	s := fakeSensors()
	r := pollOnce(s, config.Default(), false)
	require.NoError(t, l.append(&r))
	require.NoError(t, l.append(&r))

	names, err := filepath.Glob(filepath.Join(dir, "skynode-*.csv"))
	require.NoError(t, err)
	require.Len(t, names, 1)
	data, err := os.ReadFile(names[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3) // header + 2 rows
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
	assert.Equal(t, len(csvHeader), len(strings.Split(lines[1], ",")))
}

func TestCSVLog_disabled(t *testing.T) {
	l, err := newCSVLog("")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestWatchConfig_fileCreatedLater(t *testing.T) {
	old := watchRetry
	watchRetry = 10 * time.Millisecond
	defer func() { watchRetry = old }()

	// The node can start before its config file is written; the watcher
	// must keep waiting for it instead of giving up.
	path := filepath.Join(t.TempDir(), "skynode.yaml")
	reload := make(chan *config.Config, 1)
	go watchConfig(path, reload)
	time.Sleep(100 * time.Millisecond)

	cfg := config.Default()
	cfg.Label = "rooftop"
	require.NoError(t, cfg.Save(path))
	select {
	case got := <-reload:
		assert.Equal(t, "rooftop", got.Label)
	case <-time.After(5 * time.Second):
		t.Fatal("config file created after startup was never loaded")
	}
}

func TestNewPublisher_disabled(t *testing.T) {
	p, err := newPublisher(config.MQTTConfig{})
	require.NoError(t, err)
	assert.Nil(t, p)
}
