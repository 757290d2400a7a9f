// Package jwtassert builds RS256 client-assertion JWTs for the OAuth
// client-credentials grant, the way an LDN-certificate deployment
// authenticates instead of relying on mTLS alone. It mirrors the
// claim/header verification shape of auth.BackendServiceManager,
// turned around to build rather than verify an assertion.
package jwtassert

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const assertionLifetime = 1800 * time.Second

// Builder constructs client-assertion JWTs bound to one signing key and
// certificate chain, for one issuing organization (URA number).
type Builder struct {
	signingKey *rsa.PrivateKey
	chainDER   [][]byte // leaf-first, DER-encoded
	kid        string   // base64url(SHA-256(DER(signing cert))), no padding
	x5tS256    string   // base64url(SHA-256(DER(mTLS cert))), no padding
	includeX5c bool
	uraNumber  string
}

// New builds a Builder from PEM bundles. signingCertPEM and mtlsCertPEM
// may be the same bundle when the deployment uses one certificate for both
// signing and mTLS. Both must contain at least one CERTIFICATE block;
// signingCertPEM's first block is treated as the leaf used for kid and, if
// includeX5c is true, embedded as the x5c header chain.
func New(uraNumber string, signingKeyPEM, signingCertPEM, mtlsCertPEM []byte, includeX5c bool) (*Builder, error) {
	key, err := parseRSAPrivateKey(signingKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("jwtassert: parsing signing key: %w", err)
	}

	chain, err := splitCertificateChain(signingCertPEM)
	if err != nil {
		return nil, fmt.Errorf("jwtassert: parsing signing certificate chain: %w", err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("jwtassert: signing certificate bundle is empty")
	}

	mtlsChain, err := splitCertificateChain(mtlsCertPEM)
	if err != nil {
		return nil, fmt.Errorf("jwtassert: parsing mTLS certificate: %w", err)
	}
	if len(mtlsChain) == 0 {
		return nil, fmt.Errorf("jwtassert: mTLS certificate bundle is empty")
	}

	return &Builder{
		signingKey: key,
		chainDER:   chain,
		kid:        thumbprint(chain[0]),
		x5tS256:    thumbprint(mtlsChain[0]),
		includeX5c: includeX5c,
		uraNumber:  uraNumber,
	}, nil
}

// Build constructs a fresh client-assertion JWT for one token request.
func (b *Builder) Build(audience, scope, targetAudience string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":             b.uraNumber,
		"sub":             b.uraNumber,
		"aud":             audience,
		"scope":           scope,
		"target_audience": targetAudience,
		"iat":             now.Unix(),
		"exp":             now.Add(assertionLifetime).Unix(),
		"jti":             uuid.New().String(),
		"cnf": map[string]string{
			"x5t#S256": b.x5tS256,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = b.kid
	if b.includeX5c {
		x5c := make([]string, len(b.chainDER))
		for i, der := range b.chainDER {
			x5c[i] = base64.StdEncoding.EncodeToString(der)
		}
		token.Header["x5c"] = x5c
	}

	signed, err := token.SignedString(b.signingKey)
	if err != nil {
		return "", fmt.Errorf("jwtassert: signing assertion: %w", err)
	}
	return signed, nil
}

func thumbprint(der []byte) string {
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in signing key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unsupported private key encoding: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key algorithm: %T", key)
	}
	return rsaKey, nil
}

// splitCertificateChain splits a PEM bundle containing one or more
// CERTIFICATE blocks and returns their DER bytes in the order they
// appear, leaf first.
func splitCertificateChain(pemBytes []byte) ([][]byte, error) {
	var chain [][]byte
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, fmt.Errorf("invalid certificate in bundle: %w", err)
		}
		chain = append(chain, block.Bytes)
	}
	return chain, nil
}
