package handler

type ContextKey string

var (
	RoleCtxKey   ContextKey = "role"
	SubCtxKey    ContextKey = "sub"
	TenantCtxKey ContextKey = "tenant"
	MyInfoCtx    ContextKey = "myInfo"
	ScheduleCtx  ContextKey = "schedule"
	ReportCtx    ContextKey = "report"
)
