package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/engine"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/repository"
)

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	repository *repository.Repository
	translator ut.Translator
	service    *engine.Service

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo *repository.Repository, service *engine.Service) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:   validate,
		config:     cfg,
		repository: repo,
		translator: trans,
		service:    service,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	// 认证相关
	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Route("/my-info", func(r chi.Router) {
			r.Use(h.myInfo)
			r.Get("/", h.GetMyInfo)
			r.Patch("/password", h.UpdateMyPassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(h.RequiredRole([]domain.Role{domain.RoleAdmin}))
			r.Post("/", h.CreateUser)
			r.Get("/", h.GetAllUserInfo)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.reportInfo)
				r.Get("/", h.GetReport)
				r.With(h.RequiredRole([]domain.Role{domain.RoleEditor, domain.RoleAdmin})).Post("/refresh", h.RefreshReport)
			})
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", h.CreateSchedule)
			r.Get("/", h.GetAllSchedules)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.scheduleInfo)
				r.Get("/", h.GetSchedule)
				r.Patch("/", h.UpdateSchedule)
				r.Delete("/", h.DeleteSchedule)
				r.Post("/run", h.RunSchedule)
				r.Get("/executions", h.GetScheduleExecutions)
			})
		})

		// 队列处理历史只对管理员开放
		r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Get("/queue/history", h.GetQueueHistory)
	})
}
