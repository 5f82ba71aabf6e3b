package service

import (
	"testing"
	"time"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/testutil"
	"toeic_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type accountFixture struct {
	db        *gorm.DB
	cfg       *config.Config
	auth      *AuthService
	members   *MemberService
	employees *EmployeeService
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := &config.Config{}
	cfg.JWT.Secret = "account-test-secret-account-test-secret"
	cfg.JWT.ExpireTime = time.Hour

	memberRepo := repository.NewMemberRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	return &accountFixture{
		db:        db,
		cfg:       cfg,
		auth:      NewAuthService(memberRepo, employeeRepo, cfg),
		members:   NewMemberService(memberRepo),
		employees: NewEmployeeService(employeeRepo, repository.NewDepartmentRepository(db)),
	}
}

func TestMemberRegisterAndLogin(t *testing.T) {
	f := newAccountFixture(t)

	member := &model.Member{FullName: "Hoa", Email: " Hoa@Example.com ", Password: "secret1"}
	require.NoError(t, f.auth.RegisterMember(member))
	assert.Equal(t, "hoa@example.com", member.Email)
	assert.NotEqual(t, "secret1", member.Password)
	assert.Equal(t, model.MemberActive, member.Status)

	assert.ErrorIs(t, f.auth.RegisterMember(&model.Member{FullName: "X", Email: "hoa@example.com", Password: "x"}), util.ErrEmailRegistered)

	res, err := f.auth.LoginMember("HOA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, model.KindMember, res.Kind)
	assert.Equal(t, model.RoleMember, res.Role)
	claims, err := util.ParseJWT(res.Token, f.cfg.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, member.ID, claims.AccountID)

	stored, err := f.members.Get(member.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)

	_, err = f.auth.LoginMember("hoa@example.com", "wrong")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
	_, err = f.auth.LoginMember("nobody@example.com", "secret1")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)

	// 锁定后密码正确也不能登录
	require.NoError(t, f.members.SetLocked(member.ID, true))
	_, err = f.auth.LoginMember("hoa@example.com", "secret1")
	assert.ErrorIs(t, err, util.ErrAccountDisabled)

	require.NoError(t, f.members.SetLocked(member.ID, false))
	_, err = f.auth.LoginMember("hoa@example.com", "secret1")
	assert.NoError(t, err)
}

func TestEmployeeLogin(t *testing.T) {
	f := newAccountFixture(t)

	emp := &model.Employee{FullName: "Admin", Email: "admin@example.com", Password: "secret1", Role: model.RoleAdmin}
	require.NoError(t, f.employees.Create(emp))

	res, err := f.auth.LoginEmployee("admin@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, model.KindEmployee, res.Kind)
	assert.Equal(t, model.RoleAdmin, res.Role)
	claims, err := util.ParseJWT(res.Token, f.cfg.JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.False(t, claims.IsMember())

	// 会员入口不能登录员工账号
	_, err = f.auth.LoginMember("admin@example.com", "secret1")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)

	require.NoError(t, f.employees.SetDisabled(emp.ID, true))
	_, err = f.auth.LoginEmployee("admin@example.com", "secret1")
	assert.ErrorIs(t, err, util.ErrAccountDisabled)
}

func TestChangePassword(t *testing.T) {
	f := newAccountFixture(t)
	member := &model.Member{FullName: "M", Email: "m@example.com", Password: "old-pass"}
	require.NoError(t, f.auth.RegisterMember(member))

	claims := &util.Claims{AccountID: member.ID, Kind: model.KindMember}
	assert.ErrorIs(t, f.auth.ChangePassword(claims, "bad", "new-pass"), util.ErrInvalidCredentials)
	require.NoError(t, f.auth.ChangePassword(claims, "old-pass", "new-pass"))

	_, err := f.auth.LoginMember("m@example.com", "old-pass")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
	_, err = f.auth.LoginMember("m@example.com", "new-pass")
	assert.NoError(t, err)

	profile, err := f.auth.Profile(claims)
	require.NoError(t, err)
	assert.Equal(t, member.ID, profile.(*model.Member).ID)

	_, err = f.auth.Profile(&util.Claims{AccountID: 999, Kind: model.KindEmployee})
	assert.ErrorIs(t, err, util.ErrEmployeeNotFound)
}

func TestMemberCRUD(t *testing.T) {
	f := newAccountFixture(t)

	a := &model.Member{FullName: "Alice Nguyen", Email: "Alice@example.com", Password: "x", Phone: "0901"}
	b := &model.Member{FullName: "Bob Tran", Email: "bob@example.com", Password: "x"}
	require.NoError(t, f.members.Create(a))
	require.NoError(t, f.members.Create(b))
	assert.Equal(t, "alice@example.com", a.Email)
	assert.ErrorIs(t, f.members.Create(&model.Member{FullName: "A", Email: "alice@example.com", Password: "x"}), util.ErrEmailRegistered)

	list, total, err := f.members.List(" alice ", "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	name := " Alice N. "
	score := 750
	updated, err := f.members.Update(a.ID, MemberUpdate{FullName: &name, TargetScore: &score})
	require.NoError(t, err)
	assert.Equal(t, "Alice N.", updated.FullName)
	assert.Equal(t, 750, updated.TargetScore)
	assert.Equal(t, "0901", updated.Phone)

	require.NoError(t, f.members.SetLocked(b.ID, true))
	_, total, err = f.members.List("", model.MemberLocked, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	require.NoError(t, f.db.Model(a).Update("irt_ability", 1.2).Error)
	require.NoError(t, f.members.ResetAbility(a.ID))
	got, err := f.members.Get(a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.IrtAbility)

	require.NoError(t, f.members.Delete(b.ID))
	_, err = f.members.Get(b.ID)
	assert.ErrorIs(t, err, util.ErrMemberNotFound)
	assert.ErrorIs(t, f.members.Delete(b.ID), util.ErrMemberNotFound)
	assert.ErrorIs(t, f.members.SetLocked(999, true), util.ErrMemberNotFound)
	_, err = f.members.Update(999, MemberUpdate{})
	assert.ErrorIs(t, err, util.ErrMemberNotFound)
}

func TestEmployeeCRUD(t *testing.T) {
	f := newAccountFixture(t)
	dept := &model.Department{Code: "ACAD", Name: "Academic"}
	require.NoError(t, f.db.Create(dept).Error)

	missing := uint(999)
	assert.ErrorIs(t, f.employees.Create(&model.Employee{FullName: "X", Email: "x@example.com", Password: "x", DepartmentID: &missing}), util.ErrDepartmentNotFound)

	emp := &model.Employee{FullName: "Staff One", Email: "Staff@example.com", Password: "secret1", DepartmentID: &dept.ID}
	require.NoError(t, f.employees.Create(emp))
	assert.Equal(t, model.RoleStaff, emp.Role)
	assert.ErrorIs(t, f.employees.Create(&model.Employee{FullName: "Y", Email: "staff@example.com", Password: "x"}), util.ErrEmailRegistered)

	got, err := f.employees.Get(emp.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Department)
	assert.Equal(t, "ACAD", got.Department.Code)

	list, total, err := f.employees.List("staff", dept.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)

	// 提升为管理员并重置密码
	role := model.RoleAdmin
	password := "changed1"
	updated, err := f.employees.Update(emp.ID, EmployeeUpdate{Role: &role, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, updated.Role)
	res, err := f.auth.LoginEmployee("staff@example.com", "changed1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, res.Role)

	_, err = f.employees.Update(emp.ID, EmployeeUpdate{DepartmentID: &missing})
	assert.ErrorIs(t, err, util.ErrDepartmentNotFound)

	require.NoError(t, f.employees.Delete(emp.ID))
	_, err = f.employees.Get(emp.ID)
	assert.ErrorIs(t, err, util.ErrEmployeeNotFound)
	assert.ErrorIs(t, f.employees.SetDisabled(emp.ID, true), util.ErrEmployeeNotFound)
}
