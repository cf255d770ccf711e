package dnsrecord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/imroc/req/v3"
	"github.com/miekg/dns"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/doh"
)

// RecordType is a DNS record type the resolver supports.
type RecordType string

const (
	TypeTXT  RecordType = "TXT"
	TypeA    RecordType = "A"
	TypeAAAA RecordType = "AAAA"
	TypeMX   RecordType = "MX"
)

// ParseRecordType accepts txt, a, aaaa and mx in any case.
func ParseRecordType(s string) (RecordType, error) {
	switch rt := RecordType(strings.ToUpper(strings.TrimSpace(s))); rt {
	case TypeTXT, TypeA, TypeAAAA, TypeMX:
		return rt, nil
	default:
		return "", fmt.Errorf("%w: unsupported record type %q: must be TXT, A, AAAA or MX", apperr.ErrInvalidInput, s)
	}
}

// Lookuper performs one uncached lookup. A name that does not exist yields
// an empty result and no error; errors mean the attempt itself failed.
type Lookuper interface {
	Lookup(ctx context.Context, rt RecordType, name string) ([]string, error)
}

// NetResolver abstracts the subset of *net.Resolver the system backend uses.
// *net.Resolver satisfies this interface directly.
type NetResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// SystemLookuper resolves through a NetResolver.
type SystemLookuper struct {
	resolver NetResolver
}

// NewSystemLookuper wraps r.
func NewSystemLookuper(r NetResolver) *SystemLookuper {
	return &SystemLookuper{resolver: r}
}

// Lookup implements Lookuper.
func (s *SystemLookuper) Lookup(ctx context.Context, rt RecordType, name string) ([]string, error) {
	var out []string
	var err error
	switch rt {
	case TypeTXT:
		out, err = s.resolver.LookupTXT(ctx, name)
	case TypeA, TypeAAAA:
		var addrs []net.IPAddr
		addrs, err = s.resolver.LookupIPAddr(ctx, name)
		for _, addr := range addrs {
			if (addr.IP.To4() != nil) == (rt == TypeA) {
				out = append(out, addr.IP.String())
			}
		}
	case TypeMX:
		var mxs []*net.MX
		mxs, err = s.resolver.LookupMX(ctx, name)
		sort.SliceStable(mxs, func(i, j int) bool { return mxs[i].Pref < mxs[j].Pref })
		for _, mx := range mxs {
			out = append(out, strings.TrimSuffix(mx.Host, "."))
		}
	default:
		return nil, fmt.Errorf("%w: unsupported record type %q", apperr.ErrInvalidInput, rt)
	}
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

var dohTypes = map[RecordType]uint16{
	TypeTXT:  dns.TypeTXT,
	TypeA:    dns.TypeA,
	TypeAAAA: dns.TypeAAAA,
	TypeMX:   dns.TypeMX,
}

// DoHLookuper resolves over DNS-over-HTTPS.
type DoHLookuper struct {
	client   *req.Client
	endpoint string
}

// NewDoHLookuper queries endpoint, or doh.DefaultEndpoint when empty.
func NewDoHLookuper(client *req.Client, endpoint string) *DoHLookuper {
	if endpoint == "" {
		endpoint = doh.DefaultEndpoint
	}
	return &DoHLookuper{client: client, endpoint: endpoint}
}

// Lookup implements Lookuper.
func (d *DoHLookuper) Lookup(ctx context.Context, rt RecordType, name string) ([]string, error) {
	qtype, ok := dohTypes[rt]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported record type %q", apperr.ErrInvalidInput, rt)
	}
	resp, err := doh.Query(ctx, d.client, d.endpoint, name, qtype)
	if err != nil {
		return nil, err
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: DoH answered %s for %q", apperr.ErrRequestFailed, dns.RcodeToString[resp.Rcode], name)
	}

	answers := resp.Answer
	if rt == TypeMX {
		sort.SliceStable(answers, func(i, j int) bool { return answers[i].Preference < answers[j].Preference })
	}
	var out []string
	for _, a := range answers {
		if a.Type != qtype {
			continue
		}
		out = append(out, strings.TrimSuffix(a.Data, "."))
	}
	return out, nil
}
