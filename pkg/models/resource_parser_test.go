//go:build unit || !integration

package models

import (
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourcesConfig(t *testing.T) {
	cases := []struct {
		name     string
		config   ResourcesConfig
		expected Resources
	}{
		{
			name:     "empty",
			config:   ResourcesConfig{},
			expected: Resources{},
		},
		{
			name:     "millicores and mebibytes",
			config:   ResourcesConfig{CPU: "500m", Memory: "512Mi"},
			expected: Resources{CPU: 0.5, Memory: (datasize.MB * 512).Bytes()},
		},
		{
			name:     "whole cores and decimal units",
			config:   ResourcesConfig{CPU: "2", Memory: "1GB", Disk: "4GB"},
			expected: Resources{CPU: 2, Memory: datasize.GB.Bytes(), Disk: (datasize.GB * 4).Bytes()},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := tc.config.Parse()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestParseResourcesConfigInvalid(t *testing.T) {
	_, err := ResourcesConfig{CPU: "lots"}.Parse()
	assert.Error(t, err)

	_, err = ResourcesConfig{Memory: "many bytes"}.Parse()
	assert.Error(t, err)
}
