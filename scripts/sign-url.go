// Package main is a development utility for signing a media URL locally. Given
// a private key PEM (as stored in signing_keys.private_key_pem), it generates a
// fresh link hash, signs the canonical string, and prints both the full signed
// URL and a ready-to-run SQL INSERT so developers can exercise the verification
// path against a local database without going through the admin API. Do not use
// locally minted links in production — issue them through POST /api/v1/links.
package main

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/media-gateway/media-gateway/pkg/signedurl"
)

func main() {
	keyPath := flag.String("key", "signing-key.pem", "path to the RSA private key PEM")
	keyID := flag.String("key-id", "DEVKEY", "Key-Pair-Id to embed in the URL")
	base := flag.String("base", "http://localhost:8080", "public base URL of the gateway")
	mediaID := flag.Uint64("media", 1, "media object id")
	formatID := flag.Uint64("format", 1, "format id")
	ttl := flag.Duration("ttl", 24*time.Hour, "link lifetime")
	flag.Parse()

	pemBytes, err := os.ReadFile(*keyPath)
	if err != nil {
		log.Fatal(err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		log.Fatal("no PEM block found in key file")
	}
	priv, err := parsePrivateKey(block.Bytes)
	if err != nil {
		log.Fatal(err)
	}

	// Random 256-bit link hash, lowercase hex — same shape the issuance
	// gateway produces.
	hashBytes := make([]byte, 32)
	if _, err := rand.Read(hashBytes); err != nil {
		log.Fatal(err)
	}
	linkHash := hex.EncodeToString(hashBytes)

	expires := time.Now().Add(*ttl).Unix()
	canonical := signedurl.Canonical("GET", signedurl.ResourcePath(*mediaID, *formatID, linkHash), expires)

	digest := sha256.Sum256([]byte(canonical))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		log.Fatal(err)
	}
	signature := base64.RawURLEncoding.EncodeToString(sig)

	url := signedurl.Build(*base, *mediaID, *formatID, linkHash, expires, signature, *keyID)

	fmt.Println("==========================================================")
	fmt.Println("Signed URL Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nURL: %s\n", url)
	fmt.Printf("\nLink Hash: %s\n", linkHash)
	fmt.Printf("\nExpires: %d (%s)\n", expires, time.Unix(expires, 0).Format(time.RFC3339))
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Insert:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO signed_links (media_id, format_id, link_hash, signature, key_id, expires_at, is_active)
VALUES (%d, %d, '%s', '%s', '%s', to_timestamp(%d), TRUE);
`, *mediaID, *formatID, linkHash, signature, *keyID, expires)
	fmt.Println("\n==========================================================")
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("key is neither PKCS#1 nor PKCS#8: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not RSA")
	}
	return rsaKey, nil
}
