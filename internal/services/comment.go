package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

var commentTargets = map[domain.Kind]bool{
	domain.KindCase:   true,
	domain.KindPlan:   true,
	domain.KindTest:   true,
	domain.KindResult: true,
}

type CommentInput struct {
	Content     string  `json:"content"`
	Attachments *[]uint `json:"attachments"`
}

// CommentView carries the comment's attachments.
type CommentView struct {
	*domain.Comment
	Attachments []domain.Attachment `json:"attachments"`
}

type CommentService interface {
	// List includes tombstoned comments so threads keep their shape.
	List(ctx context.Context, target domain.Target, q repos.Query) (*repos.Page[domain.Comment], error)
	Create(ctx context.Context, target domain.Target, in CommentInput) (*CommentView, error)
	Update(ctx context.Context, id uint, in CommentInput) (*CommentView, error)
	Delete(ctx context.Context, id uint) error
}

type commentService struct {
	core   *Core
	notify NotificationService
	log    *logger.Logger
}

func NewCommentService(core *Core, notify NotificationService) CommentService {
	return &commentService{core: core, notify: notify, log: core.Log.With("service", "CommentService")}
}

func (s *commentService) target(ctx context.Context, dbc dbctx.Context, t domain.Target, action access.Action) (uint, error) {
	if !commentTargets[t.Kind] {
		return 0, apierr.FieldValidation("comment.target", "content_type", "Comments are not supported for "+string(t.Kind)+".")
	}
	projectID, err := s.core.targetProject(dbc, t)
	if err != nil {
		return 0, err
	}
	return projectID, s.core.checkIn(ctx, projectID, "comment", action)
}

func (s *commentService) List(ctx context.Context, target domain.Target, q repos.Query) (*repos.Page[domain.Comment], error) {
	dbc := read(ctx)
	if _, err := s.target(ctx, dbc, target, access.ActionView); err != nil {
		return nil, err
	}
	return s.core.Repos.Comment.Thread(dbc, target, q)
}

func (s *commentService) Create(ctx context.Context, target domain.Target, in CommentInput) (*CommentView, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apierr.FieldValidation("comment.create", "content", "This field may not be blank.")
	}
	user := actor(ctx)
	if user == nil {
		return nil, apierr.Auth("comment.create", "Authentication credentials were not provided.")
	}
	var out *CommentView
	err := s.core.Writer.Write(ctx, "comment.create", func(dbc dbctx.Context) error {
		projectID, err := s.target(ctx, dbc, target, access.ActionAdd)
		if err != nil {
			return err
		}
		c := &domain.Comment{ContentType: target.Kind, ObjectID: target.ID, UserID: *user, Content: content}
		if err := s.core.Repos.Comment.Create(dbc, c); err != nil {
			return err
		}
		out = &CommentView{Comment: c}
		if in.Attachments != nil {
			if out.Attachments, err = s.core.Attachments.BindIDs(dbc, uniq(*in.Attachments), domain.Target{Kind: domain.KindComment, ID: c.ID}, 0); err != nil {
				return err
			}
		}
		if target.Kind != domain.KindTest {
			return nil
		}
		t, err := s.core.Repos.Test.Get(dbc, target.ID)
		if err != nil {
			return err
		}
		if t.AssigneeID == nil || *t.AssigneeID == *user {
			return nil
		}
		vars := testVars(t, s.caseName(dbc, t.CaseID))
		vars["link"] = fmt.Sprintf("/projects/%d/plans/%d/?test=%d&comment=%d", projectID, t.PlanID, t.ID, c.ID)
		_, err = s.notify.Notify(dbc, NotificationEvent{
			Target:    target,
			Recipient: *t.AssigneeID,
			Code:      domain.ActionCommentAdded,
			Actor:     user,
			Vars:      vars,
		})
		return err
	})
	return out, err
}

func (s *commentService) caseName(dbc dbctx.Context, caseID uint) string {
	c, err := s.core.Repos.Case.Get(dbc, caseID)
	if err != nil {
		return ""
	}
	return c.Name
}

// own loads a live comment written by the caller.
func (s *commentService) own(ctx context.Context, dbc dbctx.Context, id uint, action access.Action) (*domain.Comment, error) {
	c, err := s.core.Repos.Comment.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.target(ctx, dbc, domain.Target{Kind: c.ContentType, ID: c.ObjectID}, action); err != nil {
		return nil, err
	}
	sub := subject(ctx)
	if !sub.IsSuperuser && c.UserID != sub.UserID {
		return nil, apierr.Permission("comment.own", "You can only change your own comments.")
	}
	return c, nil
}

func (s *commentService) Update(ctx context.Context, id uint, in CommentInput) (*CommentView, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apierr.FieldValidation("comment.update", "content", "This field may not be blank.")
	}
	var out *CommentView
	err := s.core.Writer.Write(ctx, "comment.update", func(dbc dbctx.Context) error {
		c, err := s.own(ctx, dbc, id, access.ActionChange)
		if err != nil {
			return err
		}
		c.Content = content
		if err := s.core.Repos.Comment.Save(dbc, c); err != nil {
			return err
		}
		out = &CommentView{Comment: c}
		target := domain.Target{Kind: domain.KindComment, ID: c.ID}
		if in.Attachments != nil {
			out.Attachments, err = s.core.Attachments.BindIDs(dbc, uniq(*in.Attachments), target, 0)
			return err
		}
		out.Attachments, err = s.core.Attachments.ForTarget(dbc, target)
		return err
	})
	return out, err
}

// Delete tombstones the comment: the content is replaced and the row is
// logically deleted.
func (s *commentService) Delete(ctx context.Context, id uint) error {
	return s.core.Writer.Write(ctx, "comment.delete", func(dbc dbctx.Context) error {
		c, err := s.own(ctx, dbc, id, access.ActionDelete)
		if err != nil {
			return err
		}
		c.Content = domain.CommentTombstone
		c.MarkDeleted(s.core.now())
		return s.core.Repos.Comment.Save(dbc, c)
	})
}
