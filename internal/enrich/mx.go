package enrich

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MXResolver answers whether a mail domain accepts email.
type MXResolver interface {
	HasMX(ctx context.Context, domain string) (bool, error)
}

// DefaultDNSServers are queried when none are configured.
var DefaultDNSServers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// DNSResolver looks up MX records with a plain DNS client, trying each
// server in turn.
type DNSResolver struct {
	client  *dns.Client
	servers []string
}

// NewDNSResolver creates a resolver for servers ("host:port").
func NewDNSResolver(servers []string, timeout time.Duration) *DNSResolver {
	if len(servers) == 0 {
		servers = DefaultDNSServers
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DNSResolver{
		client:  &dns.Client{Timeout: timeout},
		servers: servers,
	}
}

// HasMX reports whether domain publishes at least one MX record. A
// NXDOMAIN answer is a definite no; an error means no server answered.
func (r *DNSResolver) HasMX(ctx context.Context, domain string) (bool, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		switch resp.Rcode {
		case dns.RcodeSuccess:
			for _, rr := range resp.Answer {
				if _, ok := rr.(*dns.MX); ok {
					return true, nil
				}
			}
			return false, nil
		case dns.RcodeNameError:
			return false, nil
		default:
			lastErr = eris.Errorf("mx lookup %s: rcode %s", domain, dns.RcodeToString[resp.Rcode])
		}
	}
	return false, eris.Wrapf(lastErr, "mx lookup %s", domain)
}

// MXFilter drops mined emails whose domain has no MX record. Lookups are
// cached per domain; a failed lookup keeps the email.
type MXFilter struct {
	resolver MXResolver

	mu    sync.Mutex
	cache map[string]bool
}

// NewMXFilter creates an MXFilter using resolver.
func NewMXFilter(resolver MXResolver) *MXFilter {
	return &MXFilter{resolver: resolver, cache: make(map[string]bool)}
}

// Filter returns the emails that passed verification, preserving order.
func (f *MXFilter) Filter(ctx context.Context, emails []string) []string {
	out := emails[:0:0]
	for _, e := range emails {
		at := strings.LastIndexByte(e, '@')
		if at < 0 {
			continue
		}
		if f.accepts(ctx, strings.ToLower(e[at+1:])) {
			out = append(out, e)
		}
	}
	return out
}

func (f *MXFilter) accepts(ctx context.Context, domain string) bool {
	f.mu.Lock()
	ok, cached := f.cache[domain]
	f.mu.Unlock()
	if cached {
		return ok
	}

	ok, err := f.resolver.HasMX(ctx, domain)
	if err != nil {
		zap.L().Debug("enrich: mx lookup failed, keeping email",
			zap.String("component", "enrich"),
			zap.String("domain", domain),
			zap.Error(err),
		)
		return true
	}

	f.mu.Lock()
	f.cache[domain] = ok
	f.mu.Unlock()
	return ok
}
