package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/config"
	"github.com/sabaq-dev/sabaq-api/internal/handler"
	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
	"github.com/sabaq-dev/sabaq-api/internal/router"
	"github.com/sabaq-dev/sabaq-api/internal/service"
)

type syncApp struct {
	app    *fiber.App
	db     *gorm.DB
	course models.Course
	group  models.SubjectGroup
}

func setupSyncApp(t *testing.T, role string) *syncApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Course{},
		&models.SubjectGroup{},
		&models.CourseSection{},
		&models.Resource{},
		&models.Assignment{},
		&models.AssignmentAttachment{},
		&models.Test{},
		&models.Question{},
		&models.Option{},
		&models.Attempt{},
		&models.Answer{},
	))

	course := models.Course{CourseCode: "BIO-7", Name: "Biology", Grade: 7}
	require.NoError(t, db.Create(&course).Error)
	group := models.SubjectGroup{CourseID: course.ID, ClassroomID: 1}
	require.NoError(t, db.Create(&group).Error)

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	syncService := service.NewSyncService(
		repository.NewSyncRepository(db),
		repository.NewCourseRepository(db),
		repository.NewSectionRepository(db),
		nil, 0, service.NewRoleAccessChecker("teacher", "admin"), nil, logger,
	)
	linkService := service.NewLinkService(
		repository.NewSectionRepository(db),
		repository.NewResourceRepository(db),
		repository.NewAssignmentRepository(db),
		repository.NewTestRepository(db),
		nil, logger,
	)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test"}, router.Dependencies{
		SyncHandler: handler.NewSyncHandler(syncService, linkService, validate, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", uint(1))
			c.Locals("user_role", role)
			return c.Next()
		},
	})

	return &syncApp{app: app, db: db, course: course, group: group}
}

func TestSyncHandlerSyncCourseAndStatus(t *testing.T) {
	env := setupSyncApp(t, "teacher")

	section := models.CourseSection{CourseID: &env.course.ID, Title: "Week 1", Position: 1}
	require.NoError(t, env.db.Create(&section).Error)

	body := bytes.NewBufferString(`{"academic_start_date":"2026-09-01T00:00:00Z"}`)
	req := httptest.NewRequest("POST", "/api/v1/courses/1/sync", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var syncBody struct {
		Success bool                `json:"success"`
		Data    service.SyncSummary `json:"data"`
		Message string              `json:"message"`
	}
	decodeResponse(t, resp, &syncBody)
	require.True(t, syncBody.Success)
	require.Equal(t, "course synced", syncBody.Message)
	require.Equal(t, 1, syncBody.Data.Totals.Created)

	statusReq := httptest.NewRequest("GET", "/api/v1/subject-groups/1/sync-status", nil)
	statusResp, err := env.app.Test(statusReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, statusResp.StatusCode)

	var statusBody struct {
		Success bool                     `json:"success"`
		Data    service.SyncStatusReport `json:"data"`
	}
	decodeResponse(t, statusResp, &statusBody)
	require.True(t, statusBody.Success)
	require.True(t, statusBody.Data.IsSynced)
}

func TestSyncHandlerErrorMapping(t *testing.T) {
	env := setupSyncApp(t, "teacher")

	// No template sections yet.
	req := httptest.NewRequest("POST", "/api/v1/courses/1/sync", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	req = httptest.NewRequest("POST", "/api/v1/courses/999/sync", nil)
	resp, err = env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSyncHandlerRequiresTeacherRole(t *testing.T) {
	env := setupSyncApp(t, "student")

	req := httptest.NewRequest("POST", "/api/v1/courses/1/sync", nil)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestSyncHandlerLinkEndpoints(t *testing.T) {
	env := setupSyncApp(t, "teacher")

	// A template section cannot be relinked: it has no template ref.
	section := models.CourseSection{CourseID: &env.course.ID, Title: "Week 1", Position: 1}
	require.NoError(t, env.db.Create(&section).Error)

	body := bytes.NewBufferString(`{"unit_type":"section","unit_id":1}`)
	req := httptest.NewRequest("POST", "/api/v1/units/relink", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	body = bytes.NewBufferString(`{"unit_type":"classroom","unit_id":1}`)
	req = httptest.NewRequest("POST", "/api/v1/units/unlink", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err = env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body = bytes.NewBufferString(`{"unit_type":"section","unit_id":1}`)
	req = httptest.NewRequest("POST", "/api/v1/units/unlink", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err = env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var reloaded models.CourseSection
	require.NoError(t, env.db.First(&reloaded, section.ID).Error)
	require.True(t, reloaded.IsUnlinkedFromTemplate)
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}
