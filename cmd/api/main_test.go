package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
	"github.com/zhouzirui/serene/backend/internal/service/memory"
)

func TestOfflineGeneratorFailsAsGeneration(t *testing.T) {
	_, err := offlineGenerator{}.Generate(t.Context(), "directive", nil)
	assert.ErrorIs(t, err, ai.ErrGeneration)
	assert.ErrorIs(t, err, errOffline)

	_, err = offlineGenerator{}.GenerateJSON(t.Context(), "prompt")
	assert.ErrorIs(t, err, ai.ErrGeneration)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return after cancel")
	}
}

func TestRunServerReportsListenError(t *testing.T) {
	srv := &http.Server{Addr: "256.0.0.1:bad", Handler: http.NotFoundHandler()}
	err := runServer(t.Context(), srv)
	require.Error(t, err)
	assert.False(t, errors.Is(err, http.ErrServerClosed))
}

func TestPrintFacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.json")
	require.NoError(t, os.WriteFile(path, []byte(`["likes tea","has a cat"]`), 0o600))

	store, err := memory.NewStore(t.Context(), memory.NewFileBackend(path), offlineGenerator{}, memory.Options{})
	require.NoError(t, err)
	defer store.Close()

	var plain bytes.Buffer
	require.NoError(t, printFacts(&plain, store, false))
	assert.Equal(t, "0\t2024-01-01\tlikes tea\n1\t2024-01-01\thas a cat\n", plain.String())

	var asJSON bytes.Buffer
	require.NoError(t, printFacts(&asJSON, store, true))
	assert.JSONEq(t, `[
		{"id":"0","text":"likes tea","created_at":"2024-01-01"},
		{"id":"1","text":"has a cat","created_at":"2024-01-01"}
	]`, asJSON.String())
}

type factGenerator struct{ offlineGenerator }

func (factGenerator) GenerateJSON(context.Context, string) (string, error) {
	return `["User adopted a dog"]`, nil
}

func TestRunWithWorkerProcessesJobsQueuedDuringShutdown(t *testing.T) {
	backend := memory.NewFileBackend(filepath.Join(t.TempDir(), "memories.json"))
	store, err := memory.NewStore(t.Context(), backend, factGenerator{}, memory.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	queued := make(chan bool, 1)
	done := make(chan error, 1)
	go func() {
		done <- runWithWorker(ctx, store, func(ctx context.Context) error {
			<-ctx.Done()
			// an in-flight request finishing after the signal
			queued <- store.ExtractMemories([]chat.Message{
				chat.UserMessage("I adopted a dog"),
				chat.AssistantMessage("Congrats!"),
			})
			return nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runWithWorker did not return")
	}

	assert.True(t, <-queued)
	facts := store.GetAll()
	require.Len(t, facts, 1)
	assert.Equal(t, "User adopted a dog", facts[0].Text)
}
