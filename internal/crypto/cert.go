package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/ttygate/ttygate/internal/database"
)

const certValidity = 2 * 365 * 24 * time.Hour

// GenerateServerCertPair creates a self-signed ECDSA P-256 TLS certificate
// for the gateway itself. Self-signed is acceptable here because clients are
// expected to pin or explicitly trust the gateway cert; no CA is involved.
func GenerateServerCertPair(host string) (certPEM, keyPEM string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", "", fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: "ttygate",
		},
		NotBefore:             now,
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	if host != "" && host != "0.0.0.0" && host != "::" {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return "", "", fmt.Errorf("create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	return certPEM, keyPEM, nil
}

// ServerCertificate returns the gateway's TLS certificate, generating and
// persisting one on first use. The private key is stored encrypted; a cert
// that no longer parses or has expired is replaced.
func ServerCertificate(host string) (tls.Certificate, error) {
	if cert, ok := loadStoredCert(); ok {
		return cert, nil
	}

	certPEM, keyPEM, err := GenerateServerCertPair(host)
	if err != nil {
		return tls.Certificate{}, err
	}

	encKeyPEM, err := Encrypt(keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("encrypt TLS key: %w", err)
	}
	if err := database.SetSetting("tls_cert", certPEM); err != nil {
		return tls.Certificate{}, fmt.Errorf("save TLS cert: %w", err)
	}
	if err := database.SetSetting("tls_cert_key", encKeyPEM); err != nil {
		return tls.Certificate{}, fmt.Errorf("save TLS key: %w", err)
	}

	return tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
}

func loadStoredCert() (tls.Certificate, bool) {
	certPEM, err := database.GetSetting("tls_cert")
	if err != nil || certPEM == "" {
		return tls.Certificate{}, false
	}
	encKeyPEM, err := database.GetSetting("tls_cert_key")
	if err != nil || encKeyPEM == "" {
		return tls.Certificate{}, false
	}
	keyPEM, err := Decrypt(encKeyPEM)
	if err != nil {
		return tls.Certificate{}, false
	}
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return tls.Certificate{}, false
	}

	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return tls.Certificate{}, false
	}
	parsed, err := x509.ParseCertificate(block.Bytes)
	if err != nil || time.Now().After(parsed.NotAfter) {
		return tls.Certificate{}, false
	}
	return cert, true
}
