package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Browser finds gateways.
type Browser interface {
	// Browse reports each gateway once, when it is first resolved. The
	// channel closes when ctx is done.
	Browse(ctx context.Context) (<-chan *Endpoint, error)
}

// BrowserConfig configures an MDNSBrowser.
type BrowserConfig struct {
	// Service is the DNS-SD service type (default ServiceType).
	Service string

	// Domain is the browse domain (default Domain).
	Domain string

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string

	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Service: ServiceType,
		Domain:  Domain,
	}
}

// record is one service instance as reported on one interface.
type record struct {
	Instance string
	Host     string
	Port     int
	Text     []string
	Addrs    []string
}

// browseFunc streams resolved and removed instances until ctx is done.
type browseFunc func(ctx context.Context, service, domain string, found, lost chan<- record) error

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
	browse browseFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.Service == "" {
		config.Service = ServiceType
	}
	if config.Domain == "" {
		config.Domain = Domain
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &MDNSBrowser{
		config: config,
		browse: zeroconfBrowse(config.Interface),
	}
}

// Browse implements Browser. Services are aggregated by instance name:
// addresses from several interfaces are merged, and an instance is
// forgotten once all of its addresses are gone.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Endpoint, error) {
	out := make(chan *Endpoint)
	found := make(chan record)
	lost := make(chan record)

	go func() {
		defer close(out)

		services := make(map[string]*Endpoint)
		for {
			select {
			case r := <-found:
				ep, err := toEndpoint(r)
				if err != nil {
					b.config.Logger.Debug("ignoring gateway", "instance", r.Instance, "error", err)
					continue
				}
				if existing, ok := services[ep.Instance]; ok {
					existing.Addresses = mergeAddresses(existing.Addresses, ep.Addresses)
					continue
				}
				services[ep.Instance] = ep

				emit := *ep
				emit.Addresses = slices.Clone(ep.Addresses)
				select {
				case out <- &emit:
				case <-ctx.Done():
					return
				}

			case r := <-lost:
				if existing, ok := services[r.Instance]; ok {
					existing.Addresses = removeAddresses(existing.Addresses, r.Addrs)
					if len(existing.Addresses) == 0 {
						delete(services, r.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := b.browse(ctx, b.config.Service, b.config.Domain, found, lost); err != nil {
			b.config.Logger.Warn("mDNS browse failed", "service", b.config.Service, "error", err)
		}
	}()

	return out, nil
}

// Find returns the first gateway found within timeout.
func Find(ctx context.Context, b Browser, timeout time.Duration) (*Endpoint, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	select {
	case ep, ok := <-ch:
		if !ok {
			return nil, ErrNotFound
		}
		return ep, nil
	case <-ctx.Done():
		return nil, ErrNotFound
	}
}

// FindAll collects every gateway found within timeout.
func FindAll(ctx context.Context, b Browser, timeout time.Duration) ([]*Endpoint, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	var all []*Endpoint
	for ep := range ch {
		all = append(all, ep)
	}
	return all, nil
}

func toEndpoint(r record) (*Endpoint, error) {
	info, err := DecodeEndpointTXT(StringsToTXTRecords(r.Text), r.Port)
	if err != nil {
		return nil, err
	}
	if r.Instance == "" {
		return nil, fmt.Errorf("missing instance name")
	}
	return &Endpoint{
		Instance:  r.Instance,
		Host:      r.Host,
		Port:      info.Port,
		TLSPort:   info.TLSPort,
		Key:       info.Key,
		Addresses: slices.Clone(r.Addrs),
	}, nil
}

// zeroconfBrowse adapts zeroconf.Browse to browseFunc.
func zeroconfBrowse(iface string) browseFunc {
	return func(ctx context.Context, service, domain string, found, lost chan<- record) error {
		var opts []zeroconf.ClientOption
		if iface != "" {
			if i, err := net.InterfaceByName(iface); err == nil {
				opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*i}))
			}
		}

		entries := make(chan *zeroconf.ServiceEntry)
		removed := make(chan *zeroconf.ServiceEntry)
		go func() {
			for {
				select {
				case e, ok := <-entries:
					if !ok {
						return
					}
					select {
					case found <- entryToRecord(e):
					case <-ctx.Done():
						return
					}
				case e, ok := <-removed:
					if !ok {
						removed = nil
						continue
					}
					select {
					case lost <- entryToRecord(e):
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
	}
}

func entryToRecord(e *zeroconf.ServiceEntry) record {
	addrs := make([]string, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	for _, ip := range e.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return record{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		Text:     e.Text,
		Addrs:    addrs,
	}
}

// mergeAddresses adds new addresses to existing, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	for _, addr := range added {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

// removeAddresses drops gone from addresses.
func removeAddresses(addresses, gone []string) []string {
	return slices.DeleteFunc(addresses, func(a string) bool {
		return slices.Contains(gone, a)
	})
}

var _ Browser = (*MDNSBrowser)(nil)
