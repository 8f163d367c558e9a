package sysinfo

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/process"
)

const (
	defaultProcWireless = "/proc/net/wireless"
	iwgetidBinary       = "iwgetid"
	commandTimeout      = 2 * time.Second
)

// CommandRunner runs helper commands. *process.Runner satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, cfg process.Config) (process.Result, error)
}

// Logger defines the logging interface used by the probe.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Probe implements node.SystemInfo for one network interface.
type Probe struct {
	iface        string
	procWireless string
	runner       CommandRunner
	logger       Logger
	started      time.Time
}

// New creates a Probe for the named interface (e.g. "wlan0").
func New(iface string) *Probe {
	return &Probe{
		iface:        iface,
		procWireless: defaultProcWireless,
		runner:       process.NewRunner(),
		logger:       noopLogger{},
		started:      time.Now(),
	}
}

// SetLogger sets the logger for the probe.
func (p *Probe) SetLogger(logger Logger) {
	p.logger = logger
}

// SetRunner replaces the command runner used for SSID lookup.
func (p *Probe) SetRunner(r CommandRunner) {
	p.runner = r
}

// Interface returns the probed interface name.
func (p *Probe) Interface() string {
	return p.iface
}

// MAC returns the interface hardware address, or "" if unknown.
func (p *Probe) MAC() string {
	ifi, err := net.InterfaceByName(p.iface)
	if err != nil {
		p.logger.Debug("interface lookup failed", "interface", p.iface, "error", err)
		return ""
	}
	return ifi.HardwareAddr.String()
}

// IP returns the first IPv4 address of the interface, or "" if none.
func (p *Probe) IP() string {
	ifi, err := net.InterfaceByName(p.iface)
	if err != nil {
		p.logger.Debug("interface lookup failed", "interface", p.iface, "error", err)
		return ""
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			if v4 := ipnet.IP.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return ""
}

// Uptime returns the system uptime.
func (p *Probe) Uptime() time.Duration {
	if d, ok := systemUptime(); ok {
		return d
	}
	return time.Since(p.started)
}

// FreeMemory returns free RAM in bytes.
func (p *Probe) FreeMemory() uint64 {
	return freeMemory()
}

// SSID returns the network name the interface is associated with.
func (p *Probe) SSID() string {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := p.runner.Run(ctx, process.Config{
		Name:    "iwgetid",
		Binary:  iwgetidBinary,
		Args:    []string{p.iface, "-r"},
		Timeout: commandTimeout,
	})
	if err != nil {
		p.logger.Debug("ssid lookup failed", "interface", p.iface, "error", err)
		return ""
	}
	return strings.TrimSpace(string(res.Output))
}

// RSSI returns the signal level in dBm, or 0 if unknown.
func (p *Probe) RSSI() int {
	f, err := os.Open(p.procWireless)
	if err != nil {
		p.logger.Debug("reading wireless stats failed", "error", err)
		return 0
	}
	defer f.Close()

	level, ok := parseWireless(f, p.iface)
	if !ok {
		return 0
	}
	return level
}

// parseWireless extracts the signal level of iface from the
// /proc/net/wireless table:
//
//	Inter-| sta-|   Quality        |   Discarded packets ...
//	 face | tus | link level noise |  nwid  crypt ...
//	 wlan0: 0000   54.  -56.  -256        0      0 ...
func parseWireless(r io.Reader, iface string) (int, bool) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name, rest, found := strings.Cut(sc.Text(), ":")
		if !found || strings.TrimSpace(name) != iface {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			return 0, false
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, false
		}
		return int(level), true
	}
	return 0, false
}
