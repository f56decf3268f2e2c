package projects

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	projsvc "tokenshare-backend/internal/application/projects"
	"tokenshare-backend/internal/domain"
	"tokenshare-backend/internal/infrastructure/database"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupProjects(t *testing.T, adminID uuid.UUID) (*fiber.App, *gorm.DB) {
	db := database.OpenTestDB(t)
	h := &Handlers{Service: &projsvc.Service{DB: db}}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{"user_id": adminID.String(), "role": "admin"})
		return c.Next()
	})
	app.Post("/create-project", h.Create)
	app.Get("/:id", h.Get)
	app.Post("/:id/cancel", h.Cancel)
	return app, db
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp, out
}

func TestCreateProject(t *testing.T) {
	admin := uuid.New()
	app, db := setupProjects(t, admin)

	resp, out := postJSON(t, app, "/create-project", map[string]interface{}{
		"name":            "Solar Farm",
		"total_tokens":    1000,
		"token_price":     "12.50",
		"initial_capital": 5000,
	})
	require.Equal(t, 201, resp.StatusCode)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "Solar Farm", data["name"])
	assert.EqualValues(t, 1000, data["available_tokens"])

	var p domain.Project
	require.NoError(t, db.First(&p).Error)
	assert.Equal(t, admin, p.AdminID)
}

func TestCreateProject_Invalid(t *testing.T) {
	app, _ := setupProjects(t, uuid.New())

	resp, out := postJSON(t, app, "/create-project", map[string]interface{}{
		"name":         "Fractional",
		"total_tokens": 10.5,
		"token_price":  "1.00",
	})
	assert.Equal(t, 400, resp.StatusCode)
	details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, "validation", details["kind"])

	resp, _ = postJSON(t, app, "/create-project", map[string]interface{}{
		"name":         "Cheap",
		"total_tokens": 10,
		"token_price":  "0.001",
	})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGetAndCancelProject(t *testing.T) {
	admin := uuid.New()
	app, _ := setupProjects(t, admin)
	_, out := postJSON(t, app, "/create-project", map[string]interface{}{
		"name":         "Brewery",
		"total_tokens": 10,
		"token_price":  "2.00",
	})
	id := out["data"].(map[string]interface{})["project_id"].(string)

	resp, err := app.Test(httptest.NewRequest("GET", "/"+id, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/"+uuid.NewString(), nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, out = postJSON(t, app, "/"+id+"/cancel", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "cancelled", out["data"].(map[string]interface{})["status"])

	resp, _ = postJSON(t, app, "/"+id+"/cancel", nil)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestCancelProject_NotOwner(t *testing.T) {
	app, db := setupProjects(t, uuid.New())
	p := domain.Project{Name: "Other", TotalTokens: 1, AvailableTokens: 1, Status: domain.ProjectStatusActive, AdminID: uuid.New()}
	require.NoError(t, db.Create(&p).Error)

	resp, _ := postJSON(t, app, "/"+p.ProjectID.String()+"/cancel", nil)
	assert.Equal(t, 403, resp.StatusCode)
}
