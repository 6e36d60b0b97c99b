// Package attachments stores uploaded files, derives thumbnails for images and
// tracks the polymorphic parent and versions each attachment belongs to.
package attachments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/blob"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

const keyPrefix = "attachments"

// File is one uploaded file.
type File struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

type Store struct {
	db          *gorm.DB
	blobs       blob.Store
	resolutions []Resolution
	log         *logger.Logger
}

func NewStore(db *gorm.DB, blobs blob.Store, resolutions []Resolution, baseLog *logger.Logger) *Store {
	return &Store{db: db, blobs: blobs, resolutions: resolutions, log: baseLog.With("store", "AttachmentStore")}
}

// newKey returns attachments/<2-char prefix>/<hash><ext> for a fresh upload.
func newKey(ext string) string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	h := hex.EncodeToString(sum[:])
	return path.Join(keyPrefix, h[:2], h+strings.ToLower(ext))
}

// stem strips the extension and any @WxH suffix from a blob key.
func stem(key string) string {
	base := strings.TrimSuffix(key, path.Ext(key))
	if i := strings.LastIndex(base, "@"); i > strings.LastIndex(base, "/") {
		base = base[:i]
	}
	return base
}

func splitName(filename string) (name, ext string) {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext = path.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

// Upload persists files and their rows. When target is set, the attachments
// are bound to it at historyID in the same call.
func (s *Store) Upload(dbc dbctx.Context, files []File, projectID, userID *uint, target *domain.Target, historyID uint) ([]domain.Attachment, error) {
	out := make([]domain.Attachment, 0, len(files))
	for _, f := range files {
		att, err := s.uploadOne(dbc, f, projectID, userID)
		if err != nil {
			return nil, err
		}
		if target != nil {
			att.ContentType = target.Kind
			att.ObjectID = &target.ID
			if historyID != 0 {
				att.ContentObjectHistoryIDs = append(att.ContentObjectHistoryIDs, historyID)
			}
		}
		if err := dbc.DB(s.db).Create(att).Error; err != nil {
			return nil, fmt.Errorf("create attachment: %w", err)
		}
		out = append(out, *att)
	}
	return out, nil
}

func (s *Store) uploadOne(dbc dbctx.Context, f File, projectID, userID *uint) (*domain.Attachment, error) {
	data, err := io.ReadAll(f.Content)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	name, ext := splitName(f.Filename)
	ct := f.ContentType
	if ct == "" || ct == "application/octet-stream" {
		if guessed := mime.TypeByExtension(strings.ToLower(ext)); guessed != "" {
			ct = guessed
		}
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	key := newKey(ext)
	if _, err := s.blobs.Put(dbc.Ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: ct}); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if strings.HasPrefix(ct, "image/") {
		s.makeThumbnails(dbc.Ctx, key, data)
	}
	return &domain.Attachment{
		ProjectID: projectID,
		UserID:    userID,
		BlobKey:   key,
		Name:      name,
		Filename:  name + ext,
		Extension: strings.TrimPrefix(strings.ToLower(ext), "."),
		MimeType:  ct,
		Size:      int64(len(data)),
	}, nil
}

// makeThumbnails derives one thumbnail per resolution. Failures are logged and
// leave the upload with its source file only.
func (s *Store) makeThumbnails(ctx context.Context, key string, data []byte) {
	if len(s.resolutions) == 0 {
		return
	}
	img, format, err := decodeImage(data)
	if err != nil {
		s.log.Warn("thumbnail decode failed", "key", key, "error", err)
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, r := range s.resolutions {
		r := r
		g.Go(func() error {
			b, ext, err := thumbnail(img, format, r)
			if err != nil {
				return fmt.Errorf("render %s: %w", r, err)
			}
			thumbKey := stem(key) + "@" + r.String() + ext
			if _, err := s.blobs.Put(gctx, thumbKey, bytes.NewReader(b), blob.PutOptions{ContentType: mime.TypeByExtension(ext)}); err != nil {
				return fmt.Errorf("store %s: %w", thumbKey, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("thumbnail generation failed", "key", key, "error", err)
	}
}

func (s *Store) Get(dbc dbctx.Context, id uint) (*domain.Attachment, error) {
	var a domain.Attachment
	res := dbc.DB(s.db).Where("id = ?", id).Limit(1).Find(&a)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apierr.NotFound("attachments.get", "attachment", id)
	}
	return &a, nil
}

// Bind attaches to target at historyID. An already bound attachment is copied
// first so existing bindings never change.
func (s *Store) Bind(dbc dbctx.Context, att *domain.Attachment, target domain.Target, historyID uint) (*domain.Attachment, error) {
	if att.Bound() && (att.ContentType != target.Kind || *att.ObjectID != target.ID) {
		cp, err := s.copy(dbc, att)
		if err != nil {
			return nil, err
		}
		att = cp
	}
	att.ContentType = target.Kind
	id := target.ID
	att.ObjectID = &id
	if historyID != 0 && !att.HasVersion(historyID) {
		att.ContentObjectHistoryIDs = append(att.ContentObjectHistoryIDs, historyID)
	}
	if err := dbc.DB(s.db).Save(att).Error; err != nil {
		return nil, err
	}
	return att, nil
}

// BindIDs binds the attachments with ids to target.
func (s *Store) BindIDs(dbc dbctx.Context, ids []uint, target domain.Target, historyID uint) ([]domain.Attachment, error) {
	out := make([]domain.Attachment, 0, len(ids))
	for _, id := range ids {
		att, err := s.Get(dbc, id)
		if err != nil {
			return nil, err
		}
		bound, err := s.Bind(dbc, att, target, historyID)
		if err != nil {
			return nil, err
		}
		out = append(out, *bound)
	}
	return out, nil
}

// copy duplicates the row and its source blob under a fresh key.
func (s *Store) copy(dbc dbctx.Context, att *domain.Attachment) (*domain.Attachment, error) {
	_, rc, err := s.blobs.Get(dbc.Ctx, att.BlobKey)
	if err != nil {
		return nil, s.mapBlobErr(att.ID, err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, err
	}
	key := newKey(path.Ext(att.BlobKey))
	if _, err := s.blobs.Put(dbc.Ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: att.MimeType}); err != nil {
		return nil, err
	}
	if strings.HasPrefix(att.MimeType, "image/") {
		s.makeThumbnails(dbc.Ctx, key, data)
	}
	cp := *att
	cp.ID = 0
	cp.BlobKey = key
	cp.ContentType = ""
	cp.ObjectID = nil
	cp.ContentObjectHistoryIDs = nil
	cp.Timestamps = domain.Timestamps{}
	if err := dbc.DB(s.db).Create(&cp).Error; err != nil {
		return nil, err
	}
	return &cp, nil
}

// CloneTo copies the live attachments bound to version srcHistoryID of src
// onto dst and returns the id mapping. A zero srcHistoryID copies all of them.
func (s *Store) CloneTo(dbc dbctx.Context, src domain.Target, srcHistoryID uint, dst domain.Target, projectID *uint, historyID uint) (map[uint]uint, error) {
	atts, err := s.ForTarget(dbc, src)
	if err != nil {
		return nil, err
	}
	mapping := make(map[uint]uint, len(atts))
	for i := range atts {
		if srcHistoryID != 0 && !atts[i].HasVersion(srcHistoryID) {
			continue
		}
		cp, err := s.copy(dbc, &atts[i])
		if err != nil {
			return nil, err
		}
		cp.ProjectID = projectID
		if _, err := s.Bind(dbc, cp, dst, historyID); err != nil {
			return nil, err
		}
		mapping[atts[i].ID] = cp.ID
	}
	return mapping, nil
}

// RefreshVersions appends historyID to each attachment's versions.
func (s *Store) RefreshVersions(dbc dbctx.Context, atts []domain.Attachment, historyID uint) error {
	for i := range atts {
		if atts[i].HasVersion(historyID) {
			continue
		}
		atts[i].ContentObjectHistoryIDs = append(atts[i].ContentObjectHistoryIDs, historyID)
		if err := dbc.DB(s.db).Model(&atts[i]).UpdateColumn("content_object_history_ids", atts[i].ContentObjectHistoryIDs).Error; err != nil {
			return err
		}
	}
	return nil
}

// ForTarget lists the live attachments of a target.
func (s *Store) ForTarget(dbc dbctx.Context, target domain.Target) ([]domain.Attachment, error) {
	var out []domain.Attachment
	err := dbc.DB(s.db).Where("content_type = ? AND object_id = ? AND is_deleted = ?", target.Kind, target.ID, false).
		Order("id ASC").Find(&out).Error
	return out, err
}

// RestoreByVersion un-deletes attachments referenced by historyID and rebinds
// them to newHistoryID; every other attachment of the target is deleted.
func (s *Store) RestoreByVersion(dbc dbctx.Context, target domain.Target, historyID, newHistoryID uint) error {
	var all []domain.Attachment
	if err := dbc.DB(s.db).Where("content_type = ? AND object_id = ?", target.Kind, target.ID).Find(&all).Error; err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range all {
		a := &all[i]
		if a.HasVersion(historyID) {
			a.Restore()
			if !a.HasVersion(newHistoryID) {
				a.ContentObjectHistoryIDs = append(a.ContentObjectHistoryIDs, newHistoryID)
			}
		} else if !a.IsDeleted {
			a.MarkDeleted(now)
		} else {
			continue
		}
		if err := dbc.DB(s.db).Model(a).Select("is_deleted", "deleted_at", "content_object_history_ids").Updates(a).Error; err != nil {
			return err
		}
	}
	return nil
}

// Delete logically deletes an attachment.
func (s *Store) Delete(dbc dbctx.Context, att *domain.Attachment) error {
	att.MarkDeleted(time.Now().UTC())
	return dbc.DB(s.db).Model(att).Select("is_deleted", "deleted_at").Updates(att).Error
}

// HardDelete removes the row, the source blob and every derived thumbnail.
func (s *Store) HardDelete(dbc dbctx.Context, att *domain.Attachment) error {
	if err := dbc.DB(s.db).Delete(&domain.Attachment{}, att.ID).Error; err != nil {
		return err
	}
	key := att.BlobKey
	dbc.AfterCommit(func(ctx context.Context) {
		if err := s.removeBlobs(ctx, key); err != nil {
			s.log.Warn("attachment blob cleanup failed", "key", key, "error", err)
		}
	})
	return nil
}

func (s *Store) removeBlobs(ctx context.Context, key string) error {
	st := stem(key)
	infos, err := s.blobs.List(ctx, st)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if stem(info.Key) != st {
			continue
		}
		if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
			return err
		}
	}
	return nil
}

var thumbSize = regexp.MustCompile(`@(\d+)x(\d+)\.[^./]+$`)

// Served is an opened attachment body.
type Served struct {
	Info        blob.Info
	Body        io.ReadCloser
	Disposition string
}

// Open returns the nearest stored thumbnail to width x height, or the source
// when no size is requested or no thumbnail exists.
func (s *Store) Open(ctx context.Context, att *domain.Attachment, width, height int) (*Served, error) {
	if _, err := s.blobs.Head(ctx, att.BlobKey); err != nil {
		return nil, s.mapBlobErr(att.ID, err)
	}
	key := att.BlobKey
	if width > 0 || height > 0 {
		if k, ok := s.nearestThumbnail(ctx, att.BlobKey, width, height); ok {
			key = k
		}
	}
	info, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, s.mapBlobErr(att.ID, err)
	}
	return &Served{Info: info, Body: rc, Disposition: Disposition(att.MimeType, att.Filename)}, nil
}

func (s *Store) nearestThumbnail(ctx context.Context, key string, width, height int) (string, bool) {
	st := stem(key)
	infos, err := s.blobs.List(ctx, st+"@")
	if err != nil || len(infos) == 0 {
		return "", false
	}
	type cand struct {
		key  string
		dist int
	}
	var cands []cand
	for _, info := range infos {
		m := thumbSize.FindStringSubmatch(info.Key)
		if m == nil || stem(info.Key) != st {
			continue
		}
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		cands = append(cands, cand{key: info.Key, dist: abs(w-width) + abs(h-height)})
	}
	if len(cands) == 0 {
		return "", false
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	return cands[0].key, true
}

// Disposition is inline for images and attachment otherwise.
func Disposition(mimeType, filename string) string {
	kind := "attachment"
	if strings.HasPrefix(mimeType, "image/") {
		kind = "inline"
	}
	return mime.FormatMediaType(kind, map[string]string{"filename": filename})
}

func (s *Store) mapBlobErr(id uint, err error) error {
	if errors.Is(err, blob.ErrNotFound) {
		return apierr.NotFound("attachments.open", "attachment file", id)
	}
	return err
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

var attachmentRef = regexp.MustCompile(`attachments/(\d+)/`)

// RewriteReferences points inline attachments/<id>/ references at mapped ids.
func RewriteReferences(text string, mapping map[uint]uint) string {
	if len(mapping) == 0 || !strings.Contains(text, "attachments/") {
		return text
	}
	return attachmentRef.ReplaceAllStringFunc(text, func(m string) string {
		sub := attachmentRef.FindStringSubmatch(m)
		old, err := strconv.ParseUint(sub[1], 10, 64)
		if err != nil {
			return m
		}
		if nid, ok := mapping[uint(old)]; ok {
			return fmt.Sprintf("attachments/%d/", nid)
		}
		return m
	})
}

// SaveIcon stores a project icon with thumbnails and returns its key. The
// previous icon, when given, is removed after the new one is stored.
func (s *Store) SaveIcon(ctx context.Context, projectID uint, f File, previous string) (string, error) {
	data, err := io.ReadAll(f.Content)
	if err != nil {
		return "", fmt.Errorf("read icon: %w", err)
	}
	_, ext := splitName(f.Filename)
	ct := mime.TypeByExtension(strings.ToLower(ext))
	if !strings.HasPrefix(ct, "image/") {
		return "", apierr.FieldValidation("attachments.icon", "icon", "Upload a valid image.")
	}
	if _, _, err := decodeImage(data); err != nil {
		return "", apierr.FieldValidation("attachments.icon", "icon", "Upload a valid image.")
	}
	key := fmt.Sprintf("icons/%d/%s%s", projectID, uuid.NewString(), strings.ToLower(ext))
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: ct}); err != nil {
		return "", fmt.Errorf("store icon: %w", err)
	}
	s.makeThumbnails(ctx, key, data)
	if previous != "" {
		if err := s.removeBlobs(ctx, previous); err != nil {
			s.log.Warn("remove previous icon failed", "key", previous, "error", err)
		}
	}
	return key, nil
}

// OpenKey opens a stored blob by key, preferring the thumbnail nearest to width x height.
func (s *Store) OpenKey(ctx context.Context, key string, width, height int) (*Served, error) {
	if width > 0 || height > 0 {
		if k, ok := s.nearestThumbnail(ctx, key, width, height); ok {
			key = k
		}
	}
	info, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, s.mapBlobErr(0, err)
	}
	return &Served{Info: info, Body: rc, Disposition: Disposition(info.ContentType, key[strings.LastIndex(key, "/")+1:])}, nil
}
