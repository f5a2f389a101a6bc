package trace

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Security describes how to reach the brokers. Protocol follows the Kafka
// client names: PLAINTEXT, SSL, SASL_PLAINTEXT, SASL_SSL.
type Security struct {
	Protocol  string
	Mechanism string // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username  string
	Password  string
	CAFile    string
	CertFile  string
	KeyFile   string
}

func (s Security) protocol() string {
	p := strings.ToUpper(strings.TrimSpace(s.Protocol))
	if p == "" {
		return "PLAINTEXT"
	}
	return p
}

// tlsConfig returns nil when the protocol does not use TLS.
func (s Security) tlsConfig() (*tls.Config, error) {
	proto := s.protocol()
	if proto != "SSL" && proto != "SASL_SSL" {
		return nil, nil
	}
	conf := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.CAFile != "" {
		pem, err := os.ReadFile(s.CAFile)
		if err != nil {
			return nil, fmt.Errorf("load CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("bad CA PEM")
		}
		conf.RootCAs = pool
	}
	if s.CertFile != "" && s.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.CertFile, s.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	return conf, nil
}

// mechanism returns nil for protocols without SASL.
func (s Security) mechanism() (sasl.Mechanism, error) {
	proto := s.protocol()
	mech := strings.ToUpper(strings.TrimSpace(s.Mechanism))
	if proto != "SASL_PLAINTEXT" && proto != "SASL_SSL" {
		if mech != "" {
			return nil, fmt.Errorf("sasl mechanism %s requires security protocol SASL_PLAINTEXT or SASL_SSL", mech)
		}
		return nil, nil
	}
	switch mech {
	case "PLAIN":
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, s.Username, s.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, s.Username, s.Password)
	case "":
		return nil, fmt.Errorf("missing sasl mechanism for security protocol %s", proto)
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism: %s", mech)
	}
}

// transport builds the writer transport; nil means kafka-go's default.
func (s Security) transport(timeout time.Duration) (*kafka.Transport, error) {
	tlsConf, err := s.tlsConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}
	mech, err := s.mechanism()
	if err != nil {
		return nil, fmt.Errorf("sasl config: %w", err)
	}
	if tlsConf == nil && mech == nil {
		return nil, nil
	}
	return &kafka.Transport{
		TLS:         tlsConf,
		SASL:        mech,
		DialTimeout: timeout,
	}, nil
}
