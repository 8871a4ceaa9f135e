// Package signing issues new signed links: it validates the referenced media
// and format, derives a unique link hash, signs the canonical request string,
// persists the link row, and assembles the public URL.
package signing

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/media-gateway/media-gateway/internal/db/models"
	"github.com/media-gateway/media-gateway/pkg/signedurl"
)

var (
	// ErrMediaNotFound is returned when the media id does not resolve.
	ErrMediaNotFound = errors.New("media object not found")

	// ErrFormatNotFound is returned when the format id does not resolve.
	ErrFormatNotFound = errors.New("format not found")

	// ErrPersistence wraps store write failures. A caller seeing it must not
	// assume the link exists.
	ErrPersistence = errors.New("failed to persist signed link")
)

// MediaSource resolves media objects by id.
type MediaSource interface {
	GetMediaByID(ctx context.Context, id int64) (*models.MediaObject, error)
}

// FormatSource resolves format specifications by id.
type FormatSource interface {
	GetFormatByID(ctx context.Context, id int64) (*models.Format, error)
}

// LinkStore persists issued links.
type LinkStore interface {
	CreateLink(ctx context.Context, link *models.SignedLink) error
}

// Signer produces signatures under the active key pair.
type Signer interface {
	KeyID() string
	Sign(payload string) (string, error)
}

// Gateway composes the collaborators needed to issue a link.
type Gateway struct {
	media   MediaSource
	formats FormatSource
	links   LinkStore
	signer  Signer

	baseURL     string
	expiryYears func() int
	now         func() time.Time
}

// NewGateway builds an issuing gateway. expiryYears is read per call so
// configuration reloads apply without rebuilding the gateway.
func NewGateway(media MediaSource, formats FormatSource, links LinkStore, signer Signer, baseURL string, expiryYears func() int) *Gateway {
	return &Gateway{
		media:       media,
		formats:     formats,
		links:       links,
		signer:      signer,
		baseURL:     baseURL,
		expiryYears: expiryYears,
		now:         time.Now,
	}
}

// Issue creates a signed link for a media/format pair. A nil expiresAt
// defaults to now plus the configured default lifetime. On success it returns
// the persisted link and its complete public URL.
func (g *Gateway) Issue(ctx context.Context, mediaID, formatID int64, expiresAt *time.Time, createdBy *string) (*models.SignedLink, string, error) {
	media, err := g.media.GetMediaByID(ctx, mediaID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve media object: %w", err)
	}
	if media == nil {
		return nil, "", fmt.Errorf("%w: id %d", ErrMediaNotFound, mediaID)
	}

	format, err := g.formats.GetFormatByID(ctx, formatID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve format: %w", err)
	}
	if format == nil {
		return nil, "", fmt.Errorf("%w: id %d", ErrFormatNotFound, formatID)
	}

	expiry := g.now().AddDate(g.expiryYears(), 0, 0)
	if expiresAt != nil {
		expiry = *expiresAt
	}

	linkHash, err := newLinkHash(mediaID, formatID, expiry.Unix())
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive link hash: %w", err)
	}

	path := signedurl.ResourcePath(uint64(mediaID), uint64(formatID), linkHash)
	epoch := expiry.Unix()

	signature, err := g.signer.Sign(signedurl.Canonical("GET", path, epoch))
	if err != nil {
		return nil, "", err
	}

	link := &models.SignedLink{
		MediaID:   mediaID,
		FormatID:  formatID,
		LinkHash:  linkHash,
		Signature: signature,
		KeyID:     g.signer.KeyID(),
		ExpiresAt: expiry,
		CreatedBy: createdBy,
		IsActive:  true,
	}
	if err := g.links.CreateLink(ctx, link); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return link, signedurl.Build(g.baseURL, uint64(mediaID), uint64(formatID), linkHash, epoch, signature, link.KeyID), nil
}

// newLinkHash derives a 256-bit identifier from a random nonce and the link
// tuple. The nonce alone prevents guessing; mixing in the tuple keeps hashes
// unique even under a weak entropy source.
func newLinkHash(mediaID, formatID, expires int64) (string, error) {
	buf := make([]byte, 32+24)
	if _, err := rand.Read(buf[:32]); err != nil {
		return "", err
	}
	binary.BigEndian.PutUint64(buf[32:], uint64(mediaID))
	binary.BigEndian.PutUint64(buf[40:], uint64(formatID))
	binary.BigEndian.PutUint64(buf[48:], uint64(expires))

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}
