package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/rs/zerolog/log"
)

const (
	// ServiceType is the DNS-SD type the device API is advertised under.
	ServiceType = "_http._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// APIPath and APIVersion are published in the TXT record.
	APIPath    = "/api"
	APIVersion = "1"
)

// ErrNotFound is returned by Lookup when no device answered in time.
var ErrNotFound = errors.New("arena timer not found")

// Config configures the advertiser.
type Config struct {
	// Hostname is the instance name, e.g. "arena-timer".
	Hostname string

	// Port is the HTTP control API port.
	Port int

	// Interface restricts advertising to one network interface. Empty means all.
	Interface string

	// TTL overrides the record TTL when positive.
	TTL time.Duration
}

// Advertiser publishes the device's HTTP API over mDNS.
type Advertiser struct {
	config Config

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. Nothing is published until Start.
func NewAdvertiser(config Config) *Advertiser {
	return &Advertiser{config: config}
}

// TXT returns the TXT record strings for the service.
func TXT() []string {
	return []string{"path=" + APIPath, "version=" + APIVersion}
}

// Start registers the service, replacing any earlier registration.
func (a *Advertiser) Start() error {
	if a.config.Hostname == "" {
		return fmt.Errorf("mdns hostname is required")
	}
	if a.config.Port <= 0 {
		return fmt.Errorf("mdns port %d is invalid", a.config.Port)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		a.config.Hostname,
		ServiceType,
		Domain,
		a.config.Port,
		TXT(),
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register mdns service: %w", err)
	}
	a.server = server

	log.Info().
		Str("instance", a.config.Hostname).
		Str("service", ServiceType).
		Int("port", a.config.Port).
		Msg("mdns service advertised")
	return nil
}

// Stop withdraws the service. It is safe to call when not started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		log.Info().Str("instance", a.config.Hostname).Msg("mdns service withdrawn")
	}
}

// interfaces returns nil, meaning all interfaces, when name is empty or
// unknown.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		log.Warn().Err(err).Str("interface", name).Msg("unknown interface, advertising on all")
		return nil
	}
	return []net.Interface{*iface}
}

// Device is a discovered arena timer.
type Device struct {
	Instance string
	Host     string
	Port     int
	Addrs    []string
	Path     string
}

// BaseURL returns the device's API base URL, preferring an IPv4 address.
func (d Device) BaseURL() string {
	host := d.Host
	if len(d.Addrs) > 0 {
		host = d.Addrs[0]
	}
	host = strings.TrimSuffix(host, ".")
	return "http://" + net.JoinHostPort(host, strconv.Itoa(d.Port))
}

// Lookup browses for an instance named instance (any instance when empty)
// and returns the first match, or ErrNotFound once ctx is done.
func Lookup(ctx context.Context, instance string) (Device, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed); err != nil {
			log.Debug().Err(err).Msg("mdns browse ended")
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return Device{}, ErrNotFound
			}
			dev, match := entryToDevice(entry, instance)
			if match {
				return dev, nil
			}
		case <-removed:
		case <-ctx.Done():
			return Device{}, ErrNotFound
		}
	}
}

// entryToDevice converts a browse result and reports whether it is an
// arena timer with the wanted instance name.
func entryToDevice(entry *zeroconf.ServiceEntry, want string) (Device, bool) {
	if entry == nil {
		return Device{}, false
	}
	return newDevice(entry.Instance, entry.HostName, entry.Port, entry.Text, entry.AddrIPv4, entry.AddrIPv6, want)
}

func newDevice(instance, host string, port int, text []string, v4, v6 []net.IP, want string) (Device, bool) {
	if want != "" && instance != want {
		return Device{}, false
	}

	txt := ParseTXT(text)
	if txt["path"] == "" {
		return Device{}, false
	}

	addrs := make([]string, 0, len(v4)+len(v6))
	for _, ip := range v4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range v6 {
		addrs = append(addrs, ip.String())
	}

	return Device{
		Instance: instance,
		Host:     host,
		Port:     port,
		Addrs:    addrs,
		Path:     txt["path"],
	}, true
}

// ParseTXT splits "key=value" TXT strings into a map.
func ParseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		out[k] = v
	}
	return out
}
