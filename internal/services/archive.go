package services

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/softdelete"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// removable lists the kinds the archive endpoints accept as roots.
var removable = map[domain.Kind]bool{
	domain.KindProject:         true,
	domain.KindSuite:           true,
	domain.KindPlan:            true,
	domain.KindCase:            true,
	domain.KindTest:            true,
	domain.KindResult:          true,
	domain.KindParameter:       true,
	domain.KindLabel:           true,
	domain.KindStatus:          true,
	domain.KindCustomAttribute: true,
}

// DeletedRow is one entry of a deleted-objects listing.
type DeletedRow struct {
	ID        uint       `json:"id"`
	ProjectID *uint      `json:"project"`
	DeletedAt *time.Time `json:"deleted_at"`
}

type ArchiveService interface {
	Preview(ctx context.Context, mode softdelete.Mode, kind domain.Kind, ids []uint) (*softdelete.Preview, error)
	Commit(ctx context.Context, token string) (*softdelete.CommitResult, error)
	Unarchive(ctx context.Context, kind domain.Kind, ids []uint) (map[domain.Kind]int, error)
	Deleted(ctx context.Context, kind domain.Kind, projectID *uint) ([]DeletedRow, error)
	Recover(ctx context.Context, kind domain.Kind, ids []uint) (map[domain.Kind]int, error)
	Remove(ctx context.Context, kind domain.Kind, ids []uint) (map[domain.Kind]int, error)
}

type archiveService struct {
	core    *Core
	preview *softdelete.Previewer
	log     *logger.Logger
}

func NewArchiveService(core *Core, preview *softdelete.Previewer) ArchiveService {
	return &archiveService{core: core, preview: preview, log: core.Log.With("service", "ArchiveService")}
}

func permissionModel(kind domain.Kind) string {
	switch kind {
	case domain.KindStep:
		return "testcase"
	case domain.KindStepResult:
		return "testresult"
	}
	return string(kind)
}

func validKind(op string, kind domain.Kind) error {
	if !removable[kind] {
		return apierr.FieldValidation(op, "content_type", fmt.Sprintf("Unsupported content type %q.", kind))
	}
	return nil
}

// projectsOf returns the owning project of every id regardless of its state.
// A nil entry marks a global row such as a system status.
func (c *Core) projectsOf(dbc dbctx.Context, kind domain.Kind, ids []uint) ([]*uint, error) {
	table, ok := softdelete.Table(kind)
	if !ok {
		return nil, apierr.Validation("archive.project", "%s has no owning project", kind)
	}
	col := "project_id"
	if kind == domain.KindProject {
		col = "id"
	}
	var rows []struct {
		ID        uint
		ProjectID *uint
	}
	if err := dbc.DB(c.DB).Table(table).Select("id, "+col+" AS project_id").Where("id IN ?", uniq(ids)).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) != len(uniq(ids)) {
		return nil, apierr.NotFound("archive.project", string(kind), ids)
	}
	seen := map[uint]bool{}
	var out []*uint
	global := false
	for _, r := range rows {
		if r.ProjectID == nil {
			if !global {
				out = append(out, nil)
				global = true
			}
			continue
		}
		if !seen[*r.ProjectID] {
			seen[*r.ProjectID] = true
			out = append(out, r.ProjectID)
		}
	}
	return out, nil
}

func (s *archiveService) authorize(ctx context.Context, dbc dbctx.Context, kind domain.Kind, ids []uint, action access.Action) error {
	projects, err := s.core.projectsOf(dbc, kind, ids)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if err := s.core.check(ctx, p, permissionModel(kind), action); err != nil {
			return err
		}
	}
	return nil
}

func modeAction(mode softdelete.Mode) access.Action {
	if mode == softdelete.ModeArchive {
		return access.ActionChange
	}
	return access.ActionDelete
}

func (s *archiveService) Preview(ctx context.Context, mode softdelete.Mode, kind domain.Kind, ids []uint) (*softdelete.Preview, error) {
	if err := validKind("archive.preview", kind); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apierr.FieldValidation("archive.preview", "ids", "This field is required.")
	}
	dbc := read(ctx)
	if err := s.authorize(ctx, dbc, kind, ids, modeAction(mode)); err != nil {
		return nil, err
	}
	return s.preview.Preview(dbc, ctxutil.UserID(ctx), mode, kind, uniq(ids))
}

func (s *archiveService) Commit(ctx context.Context, token string) (*softdelete.CommitResult, error) {
	var out *softdelete.CommitResult
	err := s.core.Writer.Write(ctx, "archive.commit", func(dbc dbctx.Context) error {
		res, err := s.preview.Commit(dbc, ctxutil.UserID(ctx), token)
		if err != nil {
			return err
		}
		out = res
		if !res.Committed || res.Mode != softdelete.ModeDelete {
			return nil
		}
		return s.refreshAfter(dbc, res.Set)
	})
	if err != nil {
		return nil, err
	}
	if out.Committed {
		s.log.Info("archive committed", "mode", out.Mode, "kind", out.Kind, "counts", out.Counts)
	}
	return out, nil
}

// refreshAfter recomputes last_status of live tests whose results changed state.
func (s *archiveService) refreshAfter(dbc dbctx.Context, set softdelete.Set) error {
	results := set[domain.KindResult]
	if len(results) == 0 {
		return nil
	}
	var testIDs []uint
	if err := s.core.Repos.Result.DB(dbc).Model(&domain.Result{}).
		Where("id IN ?", results).Distinct().Pluck("test_id", &testIDs).Error; err != nil {
		return err
	}
	live, err := s.core.Repos.Test.GetByIDs(dbc, testIDs)
	if err != nil {
		return err
	}
	ids := make([]uint, 0, len(live))
	for _, t := range live {
		ids = append(ids, t.ID)
	}
	return s.core.refreshLastStatus(dbc, ids...)
}

func (s *archiveService) Unarchive(ctx context.Context, kind domain.Kind, ids []uint) (map[domain.Kind]int, error) {
	if err := validKind("archive.restore", kind); err != nil {
		return nil, err
	}
	var out map[domain.Kind]int
	err := s.core.Writer.Write(ctx, "archive.restore", func(dbc dbctx.Context) error {
		if err := s.authorize(ctx, dbc, kind, ids, access.ActionChange); err != nil {
			return err
		}
		set, err := s.core.SoftDelete.Unarchive(dbc, kind, uniq(ids))
		if err != nil {
			return err
		}
		out = set.Counts()
		return nil
	})
	return out, err
}

func (s *archiveService) Deleted(ctx context.Context, kind domain.Kind, projectID *uint) ([]DeletedRow, error) {
	if err := validKind("archive.deleted", kind); err != nil {
		return nil, err
	}
	if projectID == nil && !subject(ctx).IsSuperuser {
		return nil, apierr.FieldValidation("archive.deleted", "project", "This field is required.")
	}
	if err := s.core.check(ctx, projectID, permissionModel(kind), access.ActionView); err != nil {
		return nil, err
	}
	dbc := read(ctx)
	ids, err := s.core.SoftDelete.Deleted(dbc, kind, projectID)
	if err != nil || len(ids) == 0 {
		return []DeletedRow{}, err
	}
	table, _ := softdelete.Table(kind)
	col := "project_id"
	if kind == domain.KindProject {
		col = "id"
	}
	var rows []DeletedRow
	err = dbc.DB(s.core.DB).Table(table).Select("id, "+col+" AS project_id, deleted_at").
		Where("id IN ?", ids).Order("deleted_at DESC, id DESC").Scan(&rows).Error
	return rows, err
}

func (s *archiveService) Recover(ctx context.Context, kind domain.Kind, ids []uint) (map[domain.Kind]int, error) {
	if err := validKind("archive.recover", kind); err != nil {
		return nil, err
	}
	var out map[domain.Kind]int
	err := s.core.Writer.Write(ctx, "archive.recover", func(dbc dbctx.Context) error {
		if err := s.authorize(ctx, dbc, kind, ids, access.ActionDelete); err != nil {
			return err
		}
		set, err := s.core.SoftDelete.Restore(dbc, kind, uniq(ids))
		if err != nil {
			return err
		}
		out = set.Counts()
		return s.refreshAfter(dbc, set)
	})
	return out, err
}

func (s *archiveService) Remove(ctx context.Context, kind domain.Kind, ids []uint) (map[domain.Kind]int, error) {
	if err := validKind("archive.remove", kind); err != nil {
		return nil, err
	}
	if !subject(ctx).IsSuperuser {
		return nil, apierr.Permission("archive.remove", "only superusers can remove objects permanently")
	}
	var out map[domain.Kind]int
	err := s.core.Writer.Write(ctx, "archive.remove", func(dbc dbctx.Context) error {
		testIDs, err := s.testsOfResults(dbc, kind, ids)
		if err != nil {
			return err
		}
		set, err := s.core.SoftDelete.HardDelete(dbc, kind, uniq(ids))
		if err != nil {
			return err
		}
		out = set.Counts()
		return s.core.refreshLastStatus(dbc, testIDs...)
	})
	if err == nil {
		s.log.Warn("objects removed permanently", "kind", kind, "counts", out)
	}
	return out, err
}

// testsOfResults lists the live tests owning result ids, captured before a
// hard delete makes them unreachable.
func (s *archiveService) testsOfResults(dbc dbctx.Context, kind domain.Kind, ids []uint) ([]uint, error) {
	if kind != domain.KindResult {
		return nil, nil
	}
	var testIDs []uint
	err := s.core.Repos.Result.DB(dbc).Model(&domain.Result{}).
		Where("id IN ?", ids).Distinct().Pluck("test_id", &testIDs).Error
	if err != nil {
		return nil, err
	}
	var live []uint
	err = s.core.Repos.Test.DB(dbc).Model(&domain.Test{}).
		Where("id IN ? AND is_deleted = ?", testIDs, false).Pluck("id", &live).Error
	return live, err
}
