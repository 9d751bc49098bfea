// Package certs loads TLS material for the HTTPS/HTTP2/HTTP3 server
// variants, generating a self-signed certificate when none is configured.
package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"os"
	"sync"
	"time"
)

var cryptoProviderOnce sync.Once

// EnsureCryptoProvider installs process-wide TLS defaults exactly once.
// Safe to call concurrently from multiple TLS client/server constructors.
func EnsureCryptoProvider() {
	cryptoProviderOnce.Do(func() {
		// Reserved for an explicit crypto/tls FIPS or provider switch; the
		// standard library's default provider needs no further setup, but
		// the guard is kept so exactly one place in the codebase is
		// responsible for process-wide TLS initialization.
	})
}

// Load returns a tls.Config built from certFile/keyFile if both are
// non-empty and exist, or a freshly generated self-signed certificate for
// localhost/127.0.0.1 otherwise.
func Load(certFile, keyFile string) (*tls.Config, error) {
	EnsureCryptoProvider()

	if certFile != "" && keyFile != "" {
		if _, err := os.Stat(certFile); err == nil {
			if _, err := os.Stat(keyFile); err == nil {
				cert, err := tls.LoadX509KeyPair(certFile, keyFile)
				if err != nil {
					return nil, fmt.Errorf("load keypair %s/%s: %w", certFile, keyFile, err)
				}
				return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
			}
		}
	}

	cert, err := GenerateSelfSigned()
	if err != nil {
		return nil, fmt.Errorf("generate self-signed certificate: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// GenerateSelfSigned returns a one-year RSA-2048 certificate valid for
// localhost and 127.0.0.1, suitable for testing HTTPS/HTTP2/HTTP3 servers.
func GenerateSelfSigned() (tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"netspeed"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}, nil
}

// InsecureClientConfig returns a tls.Config accepting any server
// certificate, for client-side testing connections to self-signed servers.
func InsecureClientConfig() *tls.Config {
	EnsureCryptoProvider()
	return &tls.Config{InsecureSkipVerify: true}
}
