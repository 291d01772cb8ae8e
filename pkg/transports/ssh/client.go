// Package ssh provides the SSH transport for driving a run against a remote
// control point: command execution for the engine process and SFTP staging
// for the run material.
package ssh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/proofrun/proofrun/pkg/telemetry"
)

// Client manages one SSH connection to a remote control point.
type Client struct {
	config *Config
	logger *telemetry.Logger

	mu          sync.RWMutex
	client      *ssh.Client
	connected   bool
	connectedAt time.Time
}

// NewClient creates a new SSH transport client.
func NewClient(config *Config, logger *telemetry.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config: config,
		logger: logger.NewComponentLogger("ssh-transport"),
	}, nil
}

// Connect establishes the SSH connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected && c.client != nil {
		// Already connected, verify the connection is still alive
		if err := c.healthCheck(); err == nil {
			return nil
		}
		c.logger.Warn("existing connection is dead, reconnecting")
		_ = c.client.Close()
	}

	clientConfig, err := c.config.clientConfig()
	if err != nil {
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsAuthError: true,
		}
	}

	address := c.config.Address()
	c.logger.WithField("address", address).Debug("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return &TransportError{
			Op:          "connect",
			Err:         ctx.Err(),
			IsTemporary: true,
		}
	case err := <-errChan:
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: true,
		}
	case client := <-connChan:
		c.client = client
		c.connected = true
		c.connectedAt = time.Now()

		if c.config.KeepAliveInterval > 0 {
			go c.keepAlive()
		}

		c.logger.WithField("address", address).Info("SSH connection established")
		return nil
	}
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil
	}

	c.logger.WithField("host", c.config.Host).Debug("closing SSH connection")

	err := c.client.Close()
	c.client = nil
	c.connected = false

	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Connected reports whether the client has an active connection.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// healthCheck verifies the connection is responsive. Must be called with the
// lock held.
func (c *Client) healthCheck() error {
	session, err := c.client.NewSession()
	if err != nil {
		return &TransportError{Op: "healthcheck", Err: err, IsTemporary: true}
	}
	defer session.Close()

	if err := session.Run("true"); err != nil {
		return &TransportError{Op: "healthcheck", Err: err, IsTemporary: true}
	}
	return nil
}

// keepAlive sends periodic keep-alive messages.
func (c *Client) keepAlive() {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	retries := 0
	for range ticker.C {
		c.mu.RLock()
		client := c.client
		connected := c.connected
		c.mu.RUnlock()

		if !connected || client == nil {
			return
		}

		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		if err != nil {
			retries++
			c.logger.WithError(err).WithField("retries", retries).Warn("keep-alive failed")
			if retries >= c.config.MaxKeepAliveRetries {
				c.logger.Error("keep-alive failed too many times, connection may be dead")
				return
			}
		} else {
			retries = 0
		}
	}
}

// sshClient returns the underlying SSH client for session creation.
func (c *Client) sshClient() (*ssh.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.client == nil {
		return nil, &TransportError{
			Op:  "session",
			Err: fmt.Errorf("not connected"),
		}
	}
	return c.client, nil
}
