// Package resolve turns scan targets into something masscan accepts. IPv4
// literals and CIDR ranges pass through. Hostnames go to the system
// resolver, or, when a nameserver is configured, to the hosts file and then
// A queries against that nameserver using the resolv.conf search list.
package resolve

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/anstrom/portstrom/internal/errors"
	"github.com/anstrom/portstrom/internal/logging"
)

const (
	resolvConfPath = "/etc/resolv.conf"
	hostsPath      = "/etc/hosts"

	defaultTimeout = 5 * time.Second

	// maxCNAMEHops bounds alias chains the upstream did not flatten.
	maxCNAMEHops = 8
)

// Resolver looks up IPv4 addresses for hostname targets.
type Resolver struct {
	nameserver     string
	client         *dns.Client
	system         *net.Resolver
	hostsPath      string
	resolvConfPath string
	logger         *logging.Logger
}

// New creates a resolver. An empty nameserver defers to the system
// resolver. Nothing is read from disk until a hostname is looked up.
func New(nameserver string, timeout time.Duration, logger *logging.Logger) (*Resolver, error) {
	if nameserver != "" {
		if _, _, err := net.SplitHostPort(nameserver); err != nil {
			return nil, errors.ErrConfigInvalid("scan.nameserver", nameserver)
		}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Resolver{
		nameserver:     nameserver,
		client:         &dns.Client{Net: "udp", Timeout: timeout},
		system:         net.DefaultResolver,
		hostsPath:      hostsPath,
		resolvConfPath: resolvConfPath,
		logger:         logger.WithComponent("resolve"),
	}, nil
}

// Resolve returns the address masscan should scan for target.
func (r *Resolver) Resolve(ctx context.Context, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.NewResolveError(target, "empty target", nil)
	}

	if ip := net.ParseIP(target); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String(), nil
		}
		return "", errors.NewResolveError(target, "IPv6 addresses are not supported", nil)
	}

	if ip, _, err := net.ParseCIDR(target); err == nil {
		if ip.To4() == nil {
			return "", errors.NewResolveError(target, "IPv6 ranges are not supported", nil)
		}
		return target, nil
	}

	var (
		addr string
		err  error
	)
	if r.nameserver == "" {
		addr, err = r.lookupSystem(ctx, target)
	} else {
		addr, err = r.lookupConfigured(ctx, target)
	}
	if err != nil {
		return "", err
	}
	r.logger.Debug("Resolved target", "target", target, "address", addr, "nameserver", r.nameserver)
	return addr, nil
}

// lookupSystem uses the platform resolver, which honours the hosts file,
// search domains and nsswitch.
func (r *Resolver) lookupSystem(ctx context.Context, host string) (string, error) {
	ips, err := r.system.LookupIP(ctx, "ip4", host)
	if err != nil {
		return "", errors.NewResolveError(host, "", err)
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", errors.NewResolveError(host, "no A records found for host", nil)
}

// lookupConfigured checks the hosts file, then queries the configured
// nameserver for each candidate name from the search list.
func (r *Resolver) lookupConfigured(ctx context.Context, host string) (string, error) {
	if addr, ok := lookupHostsFile(r.hostsPath, host); ok {
		return addr, nil
	}

	var lastErr error
	for _, name := range r.searchNames(host) {
		addr, err := r.lookupA(ctx, host, name)
		if err == nil {
			return addr, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

// searchNames expands host with the resolv.conf search list. A missing or
// unreadable resolv.conf leaves only the name itself.
func (r *Resolver) searchNames(host string) []string {
	conf, err := dns.ClientConfigFromFile(r.resolvConfPath)
	if err != nil {
		return []string{dns.Fqdn(host)}
	}
	return conf.NameList(host)
}

// lookupHostsFile returns the first IPv4 address listed for host in the
// hosts file at path.
func lookupHostsFile(path, host string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	host = strings.TrimSuffix(host, ".")
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip := net.ParseIP(fields[0]).To4()
		if ip == nil {
			continue
		}
		for _, name := range fields[1:] {
			if strings.EqualFold(strings.TrimSuffix(name, "."), host) {
				return ip.String(), true
			}
		}
	}
	return "", false
}

func (r *Resolver) lookupA(ctx context.Context, host, name string) (string, error) {
	for hop := 0; hop <= maxCNAMEHops; hop++ {
		msg := new(dns.Msg)
		msg.SetQuestion(name, dns.TypeA)
		msg.RecursionDesired = true

		resp, _, err := r.client.ExchangeContext(ctx, msg, r.nameserver)
		if err != nil {
			return "", errors.NewResolveError(host, "", err)
		}
		if resp.Rcode != dns.RcodeSuccess {
			return "", errors.NewResolveError(host, dns.RcodeToString[resp.Rcode], nil)
		}

		var alias string
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				return rec.A.String(), nil
			case *dns.CNAME:
				if alias == "" {
					alias = rec.Target
				}
			}
		}
		if alias == "" {
			return "", errors.NewResolveError(host, "no A records found for host", nil)
		}
		name = alias
	}
	return "", errors.NewResolveError(host, fmt.Sprintf("CNAME chain longer than %d hops", maxCNAMEHops), nil)
}
