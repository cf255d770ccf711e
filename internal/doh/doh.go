// Package doh performs RFC 8484 DNS-over-HTTPS queries in wire format.
package doh

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/imroc/req/v3"
	"github.com/miekg/dns"

	"github.com/tbckr/lapse/internal/apperr"
)

// DefaultEndpoint is the Quad9 DNS-over-HTTPS endpoint.
const DefaultEndpoint = "https://dns.quad9.net/dns-query"

// Response holds the parsed DNS wire-format response.
type Response struct {
	Rcode  int
	Answer []Answer
}

// Answer holds a single DNS resource record from a DoH response.
type Answer struct {
	Name       string
	Type       uint16
	TTL        uint32
	Preference uint16 // MX only
	Data       string
}

// buildQuery encodes a recursive query for domain and recordType.
func buildQuery(domain string, recordType uint16) ([]byte, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), recordType)
	m.RecursionDesired = true
	return m.Pack()
}

// parseResponse decodes a wire-format response. Records of types lapse does
// not consume are dropped.
func parseResponse(data []byte) (*Response, error) {
	m := new(dns.Msg)
	if err := m.Unpack(data); err != nil {
		return nil, fmt.Errorf("failed to parse DNS response: %w", err)
	}
	resp := &Response{Rcode: m.Rcode}
	for _, rr := range m.Answer {
		hdr := rr.Header()
		ans := Answer{Name: hdr.Name, Type: hdr.Rrtype, TTL: hdr.Ttl}
		switch v := rr.(type) {
		case *dns.A:
			ans.Data = v.A.String()
		case *dns.AAAA:
			ans.Data = v.AAAA.String()
		case *dns.MX:
			ans.Preference = v.Preference
			ans.Data = v.Mx
		case *dns.TXT:
			ans.Data = strings.Join(v.Txt, "")
		case *dns.CNAME:
			ans.Data = v.Target
		case *dns.NS:
			ans.Data = v.Ns
		default:
			continue
		}
		resp.Answer = append(resp.Answer, ans)
	}
	return resp, nil
}

// Query sends one DoH GET request to endpoint and parses the answer.
func Query(ctx context.Context, client *req.Client, endpoint, domain string, recordType uint16) (*Response, error) {
	query, err := buildQuery(domain, recordType)
	if err != nil {
		return nil, fmt.Errorf("%w: building DNS query for %q type %s: %w",
			apperr.ErrInvalidInput, domain, dns.TypeToString[recordType], err)
	}

	httpResp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/dns-message").
		SetQueryParam("dns", base64.RawURLEncoding.EncodeToString(query)).
		Get(endpoint)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: DoH request error for %q: %w", apperr.ErrRequestFailed, domain, err)
	}
	if !httpResp.IsSuccessState() {
		body := httpResp.String()
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		return nil, fmt.Errorf("%w: DoH endpoint returned HTTP %d for %q: %q",
			apperr.ErrRequestFailed, httpResp.StatusCode, domain, body)
	}
	return parseResponse(httpResp.Bytes())
}
