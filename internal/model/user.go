package model

type UserRole string

const (
	RoleMember UserRole = "member"
	RoleStaff  UserRole = "staff"
	RoleAdmin  UserRole = "admin"
)

// AccountKind 区分会员与员工两套账号体系
type AccountKind string

const (
	KindMember   AccountKind = "member"
	KindEmployee AccountKind = "employee"
)
