package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type fakeStore struct {
	private    map[uint]bool
	perms      map[uint]map[string]bool
	restricted bool
}

func (f *fakeStore) ProjectPrivacy(_ context.Context, id uint) (bool, bool, error) {
	p, ok := f.private[id]
	return p, ok, nil
}

func (f *fakeStore) ProjectPermissions(_ context.Context, _ uint, id uint) (map[string]bool, error) {
	return f.perms[id], nil
}

func (f *fakeStore) HasAnyPermission(_ context.Context, _ uint, code string) (bool, error) {
	return code == domain.PermissionProjectRestricted && f.restricted, nil
}

func ptr(v uint) *uint { return &v }

func TestEvaluator_Check(t *testing.T) {
	const public, private = uint(1), uint(2)
	base := func() *fakeStore {
		return &fakeStore{
			private: map[uint]bool{public: false, private: true},
			perms: map[uint]map[string]bool{
				private: {"view_testcase": true, "add_testcase": true},
			},
		}
	}
	user := Subject{UserID: 5}

	cases := []struct {
		name    string
		store   func() *fakeStore
		req     Request
		wantErr apierr.Code
	}{
		{"superuser", base, Request{Subject: Subject{UserID: 1, IsSuperuser: true}, ProjectID: ptr(private), Model: "testcase", Action: ActionDelete}, ""},
		{"options", base, Request{Subject: user, ProjectID: ptr(private), Model: "testcase", Action: ActionNone}, ""},
		{"public read", base, Request{Subject: user, ProjectID: ptr(public), Model: "testcase", Action: ActionView}, ""},
		{"public write needs membership", base, Request{Subject: user, ProjectID: ptr(public), Model: "testcase", Action: ActionAdd}, apierr.CodePermission},
		{"restricted public read", func() *fakeStore { s := base(); s.restricted = true; return s },
			Request{Subject: user, ProjectID: ptr(public), Model: "testcase", Action: ActionView}, apierr.CodePermission},
		{"private with permission", base, Request{Subject: user, ProjectID: ptr(private), Model: "testcase", Action: ActionAdd}, ""},
		{"private without permission", base, Request{Subject: user, ProjectID: ptr(private), Model: "testcase", Action: ActionDelete}, apierr.CodePermission},
		{"privacy change without change_project", base, Request{Subject: user, ProjectID: ptr(private), Model: "testcase", Action: ActionAdd, ChangesPrivacy: true}, apierr.CodePermission},
		{"missing project", base, Request{Subject: user, ProjectID: ptr(99), Model: "testcase", Action: ActionView}, apierr.CodeNotFound},
		{"create project", base, Request{Subject: user, Model: "project", Action: ActionAdd}, ""},
		{"restricted create project", func() *fakeStore { s := base(); s.restricted = true; return s },
			Request{Subject: user, Model: "project", Action: ActionAdd}, apierr.CodePermission},
		{"anonymous", base, Request{ProjectID: ptr(public), Model: "testcase", Action: ActionView}, apierr.CodeAuth},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEvaluator(tc.store(), logger.NewNop())
			err := e.Check(context.Background(), tc.req)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.wantErr, apierr.CodeOf(err))
		})
	}
}

func TestActionFromMethod(t *testing.T) {
	assert.Equal(t, ActionView, ActionFromMethod("GET"))
	assert.Equal(t, ActionAdd, ActionFromMethod("POST"))
	assert.Equal(t, ActionChange, ActionFromMethod("PATCH"))
	assert.Equal(t, ActionDelete, ActionFromMethod("DELETE"))
	assert.Equal(t, ActionNone, ActionFromMethod("OPTIONS"))
	assert.Equal(t, ActionNone, ActionFromMethod("HEAD"))
}

func TestCanAssignRole(t *testing.T) {
	user := Subject{UserID: 3}
	su := Subject{UserID: 1, IsSuperuser: true}
	external := &domain.Role{Name: "External", Type: domain.RoleSuperuserOnly}
	restricting := &domain.Role{Name: "Guest", Type: domain.RoleCustom, Permissions: []domain.Permission{{Codename: domain.PermissionProjectRestricted}}}
	tester := &domain.Role{Name: "Tester", Type: domain.RoleSystem}

	assert.True(t, apierr.IsCode(CanAssignRole(user, external), apierr.CodePermission))
	assert.True(t, apierr.IsCode(CanAssignRole(user, restricting), apierr.CodePermission))
	assert.NoError(t, CanAssignRole(user, tester))
	assert.NoError(t, CanAssignRole(su, external))
	assert.False(t, CanListRole(user, external))
	assert.True(t, CanListRole(su, external))
}

func TestGormStore(t *testing.T) {
	db := testutil.DB(t)
	u := testutil.SeedUser(t, db, "alice")
	p := testutil.SeedProject(t, db, "Secret")
	require.NoError(t, db.Model(p).Update("is_private", true).Error)

	var tester, external domain.Role
	require.NoError(t, db.Where("name = ?", "Tester").First(&tester).Error)
	require.NoError(t, db.Where("name = ?", "External").First(&external).Error)
	require.NoError(t, db.Create(&domain.Membership{ProjectID: p.ID, UserID: u.ID, RoleID: tester.ID}).Error)

	store := NewGormStore(db)
	ctx := context.Background()
	priv, found, err := store.ProjectPrivacy(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, priv)

	perms, err := store.ProjectPermissions(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, perms["add_testresult"])
	assert.False(t, perms["delete_testcase"])

	restricted, err := store.HasAnyPermission(ctx, u.ID, domain.PermissionProjectRestricted)
	require.NoError(t, err)
	assert.False(t, restricted)

	require.NoError(t, db.Create(&domain.Membership{ProjectID: p.ID, UserID: u.ID, RoleID: external.ID}).Error)
	restricted, err = store.HasAnyPermission(ctx, u.ID, domain.PermissionProjectRestricted)
	require.NoError(t, err)
	assert.True(t, restricted)
}
