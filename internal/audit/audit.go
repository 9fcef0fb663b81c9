// Package audit records which address performed an account action. Addresses
// are kept sealed; lookups go through a keyed hash of the address's ban prefix.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/netip"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/models"
)

const listLimit = 200

type Store interface {
	CreateSessionEvent(ctx context.Context, e *models.SessionEvent) error
	SessionEventsByLookup(ctx context.Context, lookup string, limit int) ([]models.SessionEvent, error)
}

// Prefixer widens an address to the prefix a ban would cover.
type Prefixer interface {
	Normalize(ipOrCIDR string) (netip.Prefix, error)
}

type Recorder struct {
	store    Store
	prefixes Prefixer
	pepper   []byte
}

func NewRecorder(s Store, p Prefixer, pepper string) *Recorder {
	return &Recorder{store: s, prefixes: p, pepper: []byte(pepper)}
}

// Lookup returns the keyed hash stored for every address inside ipOrCIDR's
// ban prefix.
func (r *Recorder) Lookup(ipOrCIDR string) (string, error) {
	p, err := r.prefixes.Normalize(ipOrCIDR)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, r.pepper)
	mac.Write([]byte(p.String()))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Record appends an event for userID acting from ip.
func (r *Recorder) Record(ctx context.Context, userID uint, action, ip string) error {
	lookup, err := r.Lookup(ip)
	if err != nil {
		return err
	}
	if err := r.store.CreateSessionEvent(ctx, &models.SessionEvent{
		UserID:   userID,
		Action:   action,
		IP:       ip,
		IPLookup: lookup,
	}); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ByAddress lists events recorded from anywhere inside ipOrCIDR's ban prefix,
// newest first.
func (r *Recorder) ByAddress(ctx context.Context, ipOrCIDR string) ([]models.SessionEvent, error) {
	lookup, err := r.Lookup(ipOrCIDR)
	if err != nil {
		return nil, err
	}
	events, err := r.store.SessionEventsByLookup(ctx, lookup, listLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return events, nil
}
