package ssh

import (
	"errors"
	"testing"

	"github.com/proofrun/proofrun/pkg/telemetry"
)

var errTest = errors.New("test error")

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  "error",
		Format: "json",
		Output: "stderr",
	})
	if err != nil {
		t.Fatalf("creating test logger: %v", err)
	}
	return logger
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig("", "deploy")
	if _, err := NewClient(cfg, testLogger(t)); err == nil {
		t.Fatal("NewClient() should reject a config without a host")
	}
}

func TestClientLifecycleWithoutConnection(t *testing.T) {
	keyPath := writeTestKey(t)

	cfg := DefaultConfig("cp1.example.com", "deploy")
	cfg.PrivateKeyPath = keyPath

	client, err := NewClient(cfg, testLogger(t))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if client.Connected() {
		t.Error("Connected() should be false before Connect")
	}

	// Closing an unconnected client is a no-op.
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if _, err := client.sshClient(); err == nil {
		t.Error("sshClient() should fail before Connect")
	}
}

func TestTransportError(t *testing.T) {
	inner := &TransportError{Op: "exec", Err: errTest, IsTemporary: true}

	if inner.Error() != "exec: test error" {
		t.Errorf("Error() = %q", inner.Error())
	}
	if inner.Unwrap() != errTest {
		t.Error("Unwrap() should return the inner error")
	}
	if !inner.Temporary() {
		t.Error("Temporary() should be true")
	}
}
