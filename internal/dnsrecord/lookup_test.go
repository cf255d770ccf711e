package dnsrecord_test

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/imroc/req/v3"
	"github.com/jarcoal/httpmock"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/dnsrecord"
	"github.com/tbckr/lapse/internal/doh"
)

func dohClient(t *testing.T) *req.Client {
	t.Helper()
	client := req.NewClient()
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func wire(t *testing.T, rcode int, answers ...dns.RR) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeMX)
	m.Response = true
	m.Rcode = rcode
	m.Answer = answers
	data, err := m.Pack()
	require.NoError(t, err)
	return data
}

func rrHeader(rrtype uint16) dns.RR_Header {
	return dns.RR_Header{Name: "example.com.", Rrtype: rrtype, Class: dns.ClassINET, Ttl: 60}
}

func TestDoHLookuper_MXSortedAndFiltered(t *testing.T) {
	client := dohClient(t)
	body := wire(t, dns.RcodeSuccess,
		&dns.CNAME{Hdr: rrHeader(dns.TypeCNAME), Target: "alias.example.com."},
		&dns.MX{Hdr: rrHeader(dns.TypeMX), Preference: 20, Mx: "mx2.example.com."},
		&dns.MX{Hdr: rrHeader(dns.TypeMX), Preference: 5, Mx: "mx1.example.com."},
	)
	httpmock.RegisterResponder(http.MethodGet, doh.DefaultEndpoint, httpmock.NewBytesResponder(http.StatusOK, body))

	got, err := dnsrecord.NewDoHLookuper(client, "").Lookup(context.Background(), dnsrecord.TypeMX, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"mx1.example.com", "mx2.example.com"}, got)
}

func TestDoHLookuper_NXDomainIsEmpty(t *testing.T) {
	client := dohClient(t)
	httpmock.RegisterResponder(http.MethodGet, doh.DefaultEndpoint,
		httpmock.NewBytesResponder(http.StatusOK, wire(t, dns.RcodeNameError)))

	got, err := dnsrecord.NewDoHLookuper(client, "").Lookup(context.Background(), dnsrecord.TypeA, "missing.example")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDoHLookuper_ServFailIsError(t *testing.T) {
	client := dohClient(t)
	httpmock.RegisterResponder(http.MethodGet, doh.DefaultEndpoint,
		httpmock.NewBytesResponder(http.StatusOK, wire(t, dns.RcodeServerFailure)))

	_, err := dnsrecord.NewDoHLookuper(client, "").Lookup(context.Background(), dnsrecord.TypeA, "example.com")
	require.ErrorIs(t, err, apperr.ErrRequestFailed)
	assert.Contains(t, err.Error(), "SERVFAIL")
}

func TestDoHLookuper_CustomEndpoint(t *testing.T) {
	client := dohClient(t)
	const endpoint = "https://doh.example.net/dns-query"
	httpmock.RegisterResponder(http.MethodGet, endpoint, httpmock.NewBytesResponder(http.StatusOK,
		wire(t, dns.RcodeSuccess, &dns.A{Hdr: rrHeader(dns.TypeA), A: net.ParseIP("192.0.2.9")})))

	got, err := dnsrecord.NewDoHLookuper(client, endpoint).Lookup(context.Background(), dnsrecord.TypeA, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.9"}, got)
}
