package engine

import (
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryUnregisteredKeys(t *testing.T) {
	registry := NewRegistry(testLogger())

	if registry.Cancel("unknown") {
		t.Error("Cancel on unregistered key should return false")
	}

	if registry.Pause("unknown") {
		t.Error("Pause on unregistered key should return false")
	}

	if registry.Resume("unknown") {
		t.Error("Resume on unregistered key should return false")
	}
}

func TestRegistryPauseResumeCancel(t *testing.T) {
	registry := NewRegistry(testLogger())

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start test process: %v", err)
	}

	entry := registry.register("op-1", cmd.Process)
	if registry.Count() != 1 {
		t.Fatalf("Expected 1 registered process, got %d", registry.Count())
	}

	if !registry.Pause("op-1") {
		t.Error("Pause on registered key should return true")
	}

	if !registry.Resume("op-1") {
		t.Error("Resume on registered key should return true")
	}

	if !registry.Cancel("op-1") {
		t.Error("Cancel on registered key should return true")
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		// SIGTERM should end the sleep well before the kill escalation.
	case <-time.After(killGracePeriod + 2*time.Second):
		t.Fatal("Process did not exit after cancellation")
	}

	registry.deregister("op-1", entry)

	if registry.Count() != 0 {
		t.Errorf("Expected empty registry after deregister, got %d", registry.Count())
	}

	if registry.Cancel("op-1") {
		t.Error("Cancel after deregister should return false")
	}
}
