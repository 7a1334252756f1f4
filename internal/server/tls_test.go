// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"path/filepath"
	"testing"

	"codeberg.org/oliverandrich/readinglog/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTLSMode(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		host     string
		certFile string
		keyFile  string
		expected TLSMode
	}{
		{"explicit off", "off", "example.com", "", "", TLSModeOff},
		{"explicit acme", "acme", "example.com", "", "", TLSModeACME},
		{"explicit manual", "manual", "localhost", "", "", TLSModeManual},
		{"upper case", "OFF", "example.com", "", "", TLSModeOff},
		{"auto on localhost", "auto", "localhost", "cert.pem", "key.pem", TLSModeOff},
		{"auto with certificate", "auto", "example.com", "cert.pem", "key.pem", TLSModeManual},
		{"auto behind proxy", "", "example.com", "", "", TLSModeOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Server: config.ServerConfig{Host: tt.host},
				TLS:    config.TLSConfig{Mode: tt.mode, CertFile: tt.certFile, KeyFile: tt.keyFile},
			}

			mode, err := resolveTLSMode(cfg)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestResolveTLSMode_Unknown(t *testing.T) {
	cfg := &config.Config{TLS: config.TLSConfig{Mode: "selfsigned"}}

	_, err := resolveTLSMode(cfg)

	assert.Error(t, err)
}

func TestCanUseACME(t *testing.T) {
	assert.False(t, canUseACME(&config.Config{Server: config.ServerConfig{Host: "localhost"}}))
	assert.False(t, canUseACME(&config.Config{
		Server: config.ServerConfig{Host: "203.0.113.7"},
		TLS:    config.TLSConfig{Email: "ops@example.com"},
	}))
	assert.False(t, canUseACME(&config.Config{Server: config.ServerConfig{Host: "example.com"}}))
}

func TestSetupManual_MissingFiles(t *testing.T) {
	_, err := setupManual(&config.Config{})
	require.Error(t, err)

	dir := t.TempDir()
	_, err = setupManual(&config.Config{TLS: config.TLSConfig{
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
	}})
	assert.Error(t, err)
}

func TestSetupTLS_Off(t *testing.T) {
	result, err := SetupTLS(&config.Config{TLS: config.TLSConfig{Mode: "off"}})

	require.NoError(t, err)
	assert.Equal(t, TLSModeOff, result.Mode)
	assert.Nil(t, result.TLSConfig)
}
