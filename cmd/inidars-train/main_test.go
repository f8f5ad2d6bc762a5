package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := `timestamp,source_ip,dest_ip,source_port,dest_port,protocol,action,bytes,packets,label
2024-01-15T10:30:00Z,10.0.0.5,10.1.0.1,51000,443,TCP,allow,5000,10,normal
2024-01-15 03:12:00,203.0.113.8,10.1.0.1,4444,22,tcp,FAILED,120,2,guess_passwd
`
	rows, err := readCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.False(t, rows[0].Attack)
	assert.Equal(t, "tcp", rows[0].Event.Protocol)
	assert.Equal(t, 443, rows[0].Event.DestPort)
	assert.Equal(t, int64(5000), rows[0].Event.Bytes)

	assert.True(t, rows[1].Attack)
	assert.Equal(t, "failed", rows[1].Event.Action)
	assert.Equal(t, 3, rows[1].Event.Timestamp.Hour())
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no label column", "source_ip,dest_ip\n10.0.0.1,10.0.0.2\n"},
		{"bad port", "source_ip,dest_port,label\n10.0.0.1,http,0\n"},
		{"bad timestamp", "timestamp,label\nyesterday,0\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestSyntheticRows(t *testing.T) {
	rows := syntheticRows(100, 1)
	require.Len(t, rows, 100)

	attacks := 0
	for _, r := range rows {
		if r.Attack {
			attacks++
		}
	}
	assert.Equal(t, 20, attacks)
}
