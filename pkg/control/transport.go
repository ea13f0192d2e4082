package control

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
)

// TransportType defines the type of transport for the control API
type TransportType string

const (
	TransportUDS TransportType = "uds"
	TransportTCP TransportType = "tcp"
)

const (
	DefaultSocketPath = "/tmp/procsup.sock"
	DefaultTCPAddress = "127.0.0.1:17960"
)

// TransportConfig configures the control API transport
type TransportConfig struct {
	// Transport type (uds, tcp)
	TransportType TransportType

	// Unix domain socket path
	SocketPath string

	// TCP address (host:port)
	TCPAddress string

	// Unix socket file permissions
	FileMode os.FileMode
}

// DefaultTransportConfig returns the default transport configuration for the platform
func DefaultTransportConfig() TransportConfig {
	if runtime.GOOS == "windows" {
		return TransportConfig{
			TransportType: TransportTCP,
			TCPAddress:    DefaultTCPAddress,
		}
	}
	return TransportConfig{
		TransportType: TransportUDS,
		SocketPath:    DefaultSocketPath,
		FileMode:      0600, // Owner only
	}
}

// CreateListener creates a network listener based on the transport configuration
func CreateListener(config TransportConfig) (net.Listener, error) {
	switch config.TransportType {
	case TransportUDS:
		return createUDSListener(config)
	case TransportTCP:
		return createTCPListener(config)
	default:
		return nil, errors.NewValidationError("invalid transport type", nil).
			WithContext("transport_type", config.TransportType)
	}
}

func createUDSListener(config TransportConfig) (net.Listener, error) {
	if runtime.GOOS == "windows" {
		return nil, errors.NewValidationError("Unix domain sockets are not supported on Windows, use tcp instead", nil)
	}

	socketPath := config.SocketPath
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	// A socket that still accepts connections belongs to a live supervisor
	if conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return nil, errors.NewValidationError("another supervisor is already listening on the control socket", nil).
			WithContext("socket_path", socketPath)
	}

	// Remove stale socket file if it exists
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.NewIOError("failed to remove existing socket file", err).WithContext("socket_path", socketPath)
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return nil, errors.NewIOError("failed to create socket directory", err).WithContext("socket_path", socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, errors.NewIOError("failed to create Unix domain socket listener", err).WithContext("socket_path", socketPath)
	}

	fileMode := config.FileMode
	if fileMode == 0 {
		fileMode = 0600
	}

	if err := os.Chmod(socketPath, fileMode); err != nil {
		listener.Close()
		return nil, errors.NewIOError("failed to set socket file permissions", err).WithContext("socket_path", socketPath)
	}

	return listener, nil
}

func createTCPListener(config TransportConfig) (net.Listener, error) {
	address := config.TCPAddress
	if address == "" {
		address = DefaultTCPAddress
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.NewIOError("failed to create TCP listener", err).WithContext("address", address)
	}

	return listener, nil
}

// GetListenerAddress returns a string representation of the listener address
func GetListenerAddress(listener net.Listener) string {
	addr := listener.Addr()

	switch addr.Network() {
	case "tcp":
		return fmt.Sprintf("tcp://%s", addr.String())
	case "unix":
		return fmt.Sprintf("unix://%s", addr.String())
	default:
		return addr.String()
	}
}

// ParseControlURL parses unix:///path, tcp://host:port or http://host:port
func ParseControlURL(url string) (TransportConfig, error) {
	switch {
	case strings.HasPrefix(url, "unix://"):
		return TransportConfig{TransportType: TransportUDS, SocketPath: strings.TrimPrefix(url, "unix://")}, nil
	case strings.HasPrefix(url, "tcp://"):
		return TransportConfig{TransportType: TransportTCP, TCPAddress: strings.TrimPrefix(url, "tcp://")}, nil
	case strings.HasPrefix(url, "http://"):
		return TransportConfig{TransportType: TransportTCP, TCPAddress: strings.TrimPrefix(url, "http://")}, nil
	default:
		return TransportConfig{}, errors.NewValidationError(fmt.Sprintf("unsupported control URL: %s", url), nil)
	}
}

// roundTripper dials the configured transport regardless of the request host
func (config TransportConfig) roundTripper() (http.RoundTripper, string, error) {
	switch config.TransportType {
	case TransportUDS:
		socketPath := config.SocketPath
		if socketPath == "" {
			socketPath = DefaultSocketPath
		}
		transport := &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var dialer net.Dialer
				return dialer.DialContext(ctx, "unix", socketPath)
			},
		}
		return transport, "http://procsup", nil
	case TransportTCP:
		address := config.TCPAddress
		if address == "" {
			address = DefaultTCPAddress
		}
		return &http.Transport{}, "http://" + address, nil
	default:
		return nil, "", errors.NewValidationError("invalid transport type", nil).
			WithContext("transport_type", config.TransportType)
	}
}
