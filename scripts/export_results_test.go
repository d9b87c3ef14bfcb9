package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coupgame/coup-server-go/internal/repository"
)

func TestWriteResults(t *testing.T) {
	started := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := writeResults(&buf, []repository.GameResult{{
		RoomCode:  "ABCD",
		Winner:    "Ada",
		Players:   []string{"Ada", "Bo"},
		Turns:     14,
		StartedAt: started,
		EndedAt:   started.Add(6*time.Minute + 30*time.Second),
	}})
	require.NoError(t, err)

	assert.Equal(t,
		"room_code,winner,players,turns,started_at,ended_at,duration\n"+
			"ABCD,Ada,Ada;Bo,14,2024-01-01T12:00:00Z,2024-01-01T12:06:30Z,6m30s\n",
		buf.String())
}
