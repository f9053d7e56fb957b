package transport_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platecrane/internal/config"
	"platecrane/internal/transport"
)

func TestConnReadTimeoutIsReported(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	port := transport.NewConn(client, 20*time.Millisecond)
	defer port.Close()

	buf := make([]byte, 16)
	_, err := port.Read(buf)
	require.Error(t, err)
	assert.True(t, transport.IsTimeout(err))
}

func TestConnRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	port := transport.NewConn(client, time.Second)
	defer port.Close()

	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		_, _ = server.Write(buf[:n])
		server.Close()
	}()

	_, err := port.Write([]byte("STATUS\r\n"))
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "STATUS\r\n", string(buf[:n]))
}

func TestConnClosedPort(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	port := transport.NewConn(client, time.Second)
	require.NoError(t, port.Close())
	require.NoError(t, port.Close())

	_, err := port.Write([]byte("x"))
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestOpenTCPWithDeviceLock(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	dev := config.Device{Transport: config.TransportTCP, Address: listener.Addr().String(), ReadTimeoutMillis: 50}
	lockDir := t.TempDir()

	first, err := transport.Open(context.Background(), dev, lockDir)
	require.NoError(t, err)

	_, err = transport.Open(context.Background(), dev, lockDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")

	require.NoError(t, first.Close())
	second, err := transport.Open(context.Background(), dev, lockDir)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpenRejectsUnknownTransport(t *testing.T) {
	_, err := transport.Open(context.Background(), config.Device{Transport: "carrier-pigeon"}, "")
	require.Error(t, err)
}

func TestFindUSBDeviceFromSysfs(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("usb discovery is linux only")
	}
	root := t.TempDir()
	writeDevice := func(name, vendor, product, bus, dev string) {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for file, value := range map[string]string{"idVendor": vendor, "idProduct": product, "busnum": bus, "devnum": dev} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(value+"\n"), 0o644))
		}
	}
	writeDevice("1-1", "046d", "c52b", "1", "2")
	writeDevice("1-2", "7513", "0002", "1", "7")

	path, err := transport.FindUSBDevice(root, "/dev/bus/usb", 0x7513, 0x0002)
	require.NoError(t, err)
	assert.Equal(t, "/dev/bus/usb/001/007", path)

	_, err = transport.FindUSBDevice(root, "/dev/bus/usb", 0x1234, 0x0001)
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "usb 7513:0002", transport.Describe(config.Device{Transport: config.TransportUSB, VendorID: 0x7513, ProductID: 2}))
	assert.Equal(t, "tcp 10.0.0.1:4001", transport.Describe(config.Device{Transport: config.TransportTCP, Address: "10.0.0.1:4001"}))
}
