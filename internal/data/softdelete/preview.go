package softdelete

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// CookieName carries the preview token between preview and commit.
const CookieName = "archive_cache"

type Preview struct {
	Token     string              `json:"-"`
	Mode      Mode                `json:"mode"`
	Kind      domain.Kind         `json:"kind"`
	RootIDs   []uint              `json:"ids"`
	Counts    map[domain.Kind]int `json:"counts"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// CommitResult is either the applied set or, when the previewed rows changed
// since the preview was issued, a fresh preview to confirm again.
type CommitResult struct {
	Committed bool                `json:"committed"`
	Mode      Mode                `json:"mode"`
	Kind      domain.Kind         `json:"kind"`
	Counts    map[domain.Kind]int `json:"counts"`
	Fresh     *Preview            `json:"preview,omitempty"`
	Set       Set                 `json:"-"`
}

type previewClaims struct {
	Mode  Mode        `json:"mode"`
	Kind  domain.Kind `json:"kind"`
	Roots []uint      `json:"roots"`
	jwt.RegisteredClaims
}

type Previewer struct {
	engine *Engine
	cache  Cache
	secret []byte
	ttl    time.Duration
	log    *logger.Logger
}

func NewPreviewer(engine *Engine, cache Cache, secret []byte, ttl time.Duration, baseLog *logger.Logger) *Previewer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Previewer{engine: engine, cache: cache, secret: secret, ttl: ttl, log: baseLog.With("component", "ArchivePreview")}
}

// Preview counts what mode would take down and caches the set under a token.
func (p *Previewer) Preview(dbc dbctx.Context, userID uint, mode Mode, kind domain.Kind, ids []uint) (*Preview, error) {
	if !mode.Valid() {
		return nil, apierr.FieldValidation("archive.preview", "mode", "must be archive or delete")
	}
	if len(ids) == 0 {
		return nil, apierr.FieldValidation("archive.preview", "ids", "this field is required")
	}
	set, err := p.engine.Collect(dbc, mode, kind, ids)
	if err != nil {
		return nil, err
	}
	if set.Empty() {
		return nil, apierr.NotFound("archive.preview", string(kind), ids)
	}
	key := uuid.NewString()
	exp := time.Now().Add(p.ttl).UTC()
	claims := previewClaims{
		Mode:  mode,
		Kind:  kind,
		Roots: ids,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        key,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, apierr.Internal("archive.preview", err)
	}
	fp, err := p.fingerprint(dbc, set)
	if err != nil {
		return nil, err
	}
	entry := Entry{UserID: userID, Mode: mode, Kind: kind, RootIDs: ids, Fingerprint: fp, Set: set}
	if err := p.cache.Put(dbc.Ctx, key, entry, p.ttl); err != nil {
		return nil, err
	}
	return &Preview{Token: token, Mode: mode, Kind: kind, RootIDs: ids, Counts: set.Counts(), ExpiresAt: exp}, nil
}

func (p *Previewer) parse(token string) (*previewClaims, error) {
	claims := &previewClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apierr.Validation("archive.commit", "archive preview expired, request a new preview")
		}
		return nil, apierr.Validation("archive.commit", "invalid archive preview token")
	}
	return claims, nil
}

// fingerprint digests the collected ids together with the newest updated_at
// per kind, so an edit to any previewed row invalidates the preview as well as
// an added or removed row does.
func (p *Previewer) fingerprint(dbc dbctx.Context, set Set) (string, error) {
	kinds := make([]string, 0, len(set))
	for k, ids := range set {
		if len(ids) > 0 {
			kinds = append(kinds, string(k))
		}
	}
	sort.Strings(kinds)
	h := sha256.New()
	h.Write([]byte(set.Fingerprint()))
	for _, k := range kinds {
		var stamps []time.Time
		err := dbc.DB(p.engine.db).Table(tables[domain.Kind(k)]).
			Where("id IN ?", set[domain.Kind(k)]).
			Order("updated_at DESC").Limit(1).
			Pluck("updated_at", &stamps).Error
		if err != nil {
			return "", fmt.Errorf("stamp %s: %w", k, err)
		}
		if len(stamps) > 0 {
			fmt.Fprintf(h, "%s@%d;", k, stamps[0].UTC().UnixNano())
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Commit applies exactly the previewed set. Tokens are single use; when the
// previewed rows were added, removed or edited since the preview, nothing is
// applied and a fresh preview is returned instead. A commit that fails or
// whose transaction rolls back leaves the token usable.
func (p *Previewer) Commit(dbc dbctx.Context, userID uint, token string) (res *CommitResult, err error) {
	if token == "" {
		return nil, apierr.Validation("archive.commit", "missing archive preview token")
	}
	claims, err := p.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject != strconv.FormatUint(uint64(userID), 10) {
		return nil, apierr.Permission("archive.commit", "archive preview was issued to another user")
	}
	entry, err := p.cache.Take(dbc.Ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apierr.Validation("archive.commit", "archive preview already used or expired")
	}
	putBack := func(ctx context.Context) {
		ttl := time.Until(claims.ExpiresAt.Time)
		if ttl <= 0 {
			return
		}
		if perr := p.cache.Put(ctx, claims.ID, *entry, ttl); perr != nil {
			p.log.Warn("archive preview restore failed", "user_id", userID, "error", perr)
		}
	}
	defer func() {
		if err != nil {
			putBack(context.WithoutCancel(dbc.Ctx))
		}
	}()

	current, err := p.engine.Collect(dbc, entry.Mode, entry.Kind, entry.RootIDs)
	if err != nil {
		return nil, err
	}
	fp, err := p.fingerprint(dbc, current)
	if err != nil {
		return nil, err
	}
	if fp != entry.Fingerprint {
		p.log.Info("archive preview stale, issuing fresh preview", "user_id", userID, "kind", entry.Kind)
		fresh, err := p.Preview(dbc, userID, entry.Mode, entry.Kind, entry.RootIDs)
		if err != nil {
			return nil, err
		}
		return &CommitResult{Committed: false, Mode: entry.Mode, Kind: entry.Kind, Counts: fresh.Counts, Fresh: fresh}, nil
	}
	if err := p.engine.apply(dbc, entry.Mode, current); err != nil {
		return nil, err
	}
	dbc.OnRollback(putBack)
	return &CommitResult{Committed: true, Mode: entry.Mode, Kind: entry.Kind, Counts: current.Counts(), Set: current}, nil
}
