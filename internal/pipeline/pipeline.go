// Package pipeline implements the verification state machine every media
// request walks through: parse, signature and expiry checks, link resolution,
// link freshness, policy, artifact, serve. Each step either advances or
// short-circuits to a terminal result; only a policy denial triggers
// escalation, every other failure is informational.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/media-gateway/media-gateway/internal/artifact"
	"github.com/media-gateway/media-gateway/internal/audit"
	"github.com/media-gateway/media-gateway/internal/db/models"
	"github.com/media-gateway/media-gateway/internal/policy"
	"github.com/media-gateway/media-gateway/pkg/signedurl"
)

// RawRequest carries the unparsed pieces of an inbound media request. Path
// segments and query parameters arrive as strings; the pipeline owns all
// validation.
type RawRequest struct {
	MediaID   string
	FormatID  string
	LinkHash  string
	Expires   string
	Signature string
	KeyID     string

	SourceIP  string
	Referrer  string
	UserAgent string
	Action    string
}

// Result is the terminal state of one verification attempt.
type Result struct {
	Kind      Kind
	Artifact  *artifact.Artifact
	Link      *models.SignedLink
	Action    policy.Action
	Violation policy.ViolationKind
	Err       error
}

// Verifier checks signatures under the active key.
type Verifier interface {
	KeyID() string
	Verify(payload, signature string) bool
}

// LinkSource resolves links and owns the atomic usage counters.
type LinkSource interface {
	ActiveLinkByHash(ctx context.Context, linkHash string) (*models.SignedLink, error)
	IncrementActionCount(ctx context.Context, id int64, action string, n int) error
}

// MediaSource resolves media objects referenced by links.
type MediaSource interface {
	GetMediaByID(ctx context.Context, id int64) (*models.MediaObject, error)
}

// FormatSource resolves format specifications referenced by links.
type FormatSource interface {
	GetFormatByID(ctx context.Context, id int64) (*models.Format, error)
}

// UsageRecorder persists append-only usage events.
type UsageRecorder interface {
	CreateEvent(ctx context.Context, event *models.UsageEvent) error
}

// PolicyChecker evaluates allow/deny rules for a request.
type PolicyChecker interface {
	Check(ctx context.Context, ip, domain string, action policy.Action) (policy.CheckResult, error)
}

// ArtifactSource produces the rendition to serve.
type ArtifactSource interface {
	Get(ctx context.Context, media *models.MediaObject, format *models.Format) (*artifact.Artifact, error)
}

// Escalator is notified after every denied request.
type Escalator interface {
	Observe(ctx context.Context, ip string) error
}

// GeoResolver optionally enriches usage events with location data for the
// source IP. May return nil when nothing is known.
type GeoResolver interface {
	Lookup(ip string) json.RawMessage
}

// NopGeoResolver is the default GeoResolver: it knows no location for any IP,
// leaving usage events without geo data.
type NopGeoResolver struct{}

// Lookup always returns nil.
func (NopGeoResolver) Lookup(string) json.RawMessage { return nil }

// Pipeline wires the verification steps together.
type Pipeline struct {
	verifier  Verifier
	links     LinkSource
	media     MediaSource
	formats   FormatSource
	usage     UsageRecorder
	policy    PolicyChecker
	artifacts ArtifactSource
	escalator Escalator
	sink      audit.Shipper
	geo       GeoResolver

	now func() time.Time
}

// New builds a pipeline. sink and geo may be nil; escalator may be nil only
// in tests.
func New(verifier Verifier, links LinkSource, media MediaSource, formats FormatSource, usage UsageRecorder, checker PolicyChecker, artifacts ArtifactSource, escalator Escalator, sink audit.Shipper, geo GeoResolver) *Pipeline {
	return &Pipeline{
		verifier:  verifier,
		links:     links,
		media:     media,
		formats:   formats,
		usage:     usage,
		policy:    checker,
		artifacts: artifacts,
		escalator: escalator,
		sink:      sink,
		geo:       geo,
		now:       time.Now,
	}
}

// Process runs the state machine for one request.
func (p *Pipeline) Process(ctx context.Context, raw RawRequest) Result {
	// Parsed
	mediaID, err1 := strconv.ParseInt(raw.MediaID, 10, 64)
	formatID, err2 := strconv.ParseInt(raw.FormatID, 10, 64)
	expires, err3 := strconv.ParseInt(raw.Expires, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || mediaID < 0 || formatID < 0 ||
		!signedurl.ValidLinkHash(raw.LinkHash) || raw.Signature == "" || raw.KeyID == "" {
		return Result{Kind: KindBadRequest}
	}
	action, ok := policy.ParseAction(raw.Action)
	if !ok {
		return Result{Kind: KindBadRequest}
	}

	// SignatureChecked
	now := p.now()
	if expires < now.Unix() {
		return Result{Kind: KindExpired, Action: action}
	}
	if raw.KeyID != p.verifier.KeyID() {
		return Result{Kind: KindKeyMismatch, Action: action}
	}
	canonical := signedurl.Canonical("GET", signedurl.ResourcePath(uint64(mediaID), uint64(formatID), raw.LinkHash), expires)
	if !p.verifier.Verify(canonical, raw.Signature) {
		return Result{Kind: KindInvalidSignature, Action: action}
	}

	// LinkResolved
	link, err := p.links.ActiveLinkByHash(ctx, raw.LinkHash)
	if err != nil {
		return Result{Kind: KindInternal, Action: action, Err: err}
	}
	if link == nil || link.MediaID != mediaID || link.FormatID != formatID {
		return Result{Kind: KindLinkNotFound, Action: action}
	}

	// LinkFreshnessChecked: the row's own expiry is the source of truth,
	// independent of the URL's Expires claim.
	if link.Expired(now) {
		p.recordUsage(ctx, link, raw, action, false, "")
		return Result{Kind: KindLinkExpired, Link: link, Action: action}
	}

	// PolicyChecked
	decision, err := p.policy.Check(ctx, raw.SourceIP, raw.Referrer, action)
	if err != nil {
		return Result{Kind: KindInternal, Link: link, Action: action, Err: err}
	}
	if !decision.Authorized {
		p.recordUsage(ctx, link, raw, action, false, decision.Violation)
		if p.sink != nil {
			event := &audit.Event{
				Timestamp:     now.UTC(),
				Action:        audit.ActionViolationDetected,
				LinkID:        link.ID,
				MediaID:       link.MediaID,
				IPAddress:     raw.SourceIP,
				Domain:        policy.NormalizeDomain(raw.Referrer),
				ViolationKind: string(decision.Violation),
			}
			if err := p.sink.Ship(ctx, event); err != nil {
				slog.Warn("failed to ship violation audit event", "link_id", link.ID, "error", err)
			}
		}
		if p.escalator != nil {
			if err := p.escalator.Observe(ctx, raw.SourceIP); err != nil {
				slog.Error("violation escalation failed", "ip", raw.SourceIP, "error", err)
			}
		}
		return Result{Kind: KindForbidden, Link: link, Action: action, Violation: decision.Violation}
	}

	p.recordUsage(ctx, link, raw, action, true, "")
	if err := p.links.IncrementActionCount(ctx, link.ID, string(action), 1); err != nil {
		// A lost counter tick must not fail an authorized request.
		slog.Warn("failed to increment usage counter", "link_id", link.ID, "action", action, "error", err)
	}

	// ArtifactReady
	media, err := p.media.GetMediaByID(ctx, link.MediaID)
	if err != nil || media == nil {
		return Result{Kind: KindInternal, Link: link, Action: action, Err: err}
	}
	format, err := p.formats.GetFormatByID(ctx, link.FormatID)
	if err != nil || format == nil {
		return Result{Kind: KindInternal, Link: link, Action: action, Err: err}
	}

	art, err := p.artifacts.Get(ctx, media, format)
	if err != nil {
		return Result{Kind: KindRenderFailure, Link: link, Action: action, Err: err}
	}

	return Result{Kind: KindOK, Artifact: art, Link: link, Action: action}
}

// recordUsage appends a usage event for a resolvable link. Event persistence
// is best-effort for the request itself but failures are loud in the logs.
func (p *Pipeline) recordUsage(ctx context.Context, link *models.SignedLink, raw RawRequest, action policy.Action, authorized bool, violation policy.ViolationKind) {
	event := &models.UsageEvent{
		LinkID:     link.ID,
		Action:     string(action),
		SourceIP:   raw.SourceIP,
		Domain:     policy.NormalizeDomain(raw.Referrer),
		UserAgent:  raw.UserAgent,
		Authorized: authorized,
	}
	if violation != "" {
		v := string(violation)
		event.ViolationKind = &v
	}
	if p.geo != nil {
		event.Geo = p.geo.Lookup(raw.SourceIP)
	}

	if err := p.usage.CreateEvent(ctx, event); err != nil {
		slog.Error("failed to record usage event", "link_id", link.ID, "error", err)
	}
}
