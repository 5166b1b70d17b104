package bridgeapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/internal/webserver"
)

func registerInstanceRoutes() {
	webserver.ApiGET("/instances", listInstances)
	webserver.ApiPOST("/instances", createInstance)
	webserver.ApiPUT("/instances/:id", updateInstance)
	webserver.ApiDELETE("/instances/:id", deleteInstance)
	webserver.ApiPOST("/instances/:id/logout", logoutInstance)
	webserver.ApiGET("/instances/:id/qr", qrInstance)
	webserver.ApiPOST("/instances/:id/restart", restartInstance)
	webserver.ApiPOST("/instances/:id/presence", setInstancePresence)
	webserver.ApiGET("/status", statusInfo)
}

func listInstances(c echo.Context) error {
	locationID := locationIDOf(c)
	if locationID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_LOCATION", "locationId is required", nil)
	}
	list, err := instSvc.List(c.Request().Context(), locationID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "LIST_FAILED", "Failed to list instances", err.Error())
	}

	page, pageSize := parsePagination(c)
	total := int64(len(list))
	start := (page - 1) * pageSize
	if start > len(list) {
		start = len(list)
	}
	end := start + pageSize
	if end > len(list) {
		end = len(list)
	}
	return paged(c, list[start:end], total, page, pageSize)
}

type instancePayload struct {
	LocationID   string `json:"locationId"`
	InstanceName string `json:"instanceName"`
	Token        string `json:"token"`
	CustomName   string `json:"customName"`
	Presence     string `json:"presence"`
}

func createInstance(c echo.Context) error {
	var payload instancePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse instance parameters", nil)
	}
	locationID := payload.LocationID
	if locationID == "" {
		locationID = locationIDOf(c)
	}
	if locationID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_LOCATION", "locationId is required", nil)
	}
	if strings.TrimSpace(payload.InstanceName) == "" || payload.Token == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "instanceName and token are required", nil)
	}

	inst, err := instSvc.Create(c.Request().Context(), locationID,
		strings.TrimSpace(payload.InstanceName), payload.Token, payload.CustomName)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return fail(c, http.StatusConflict, "DUPLICATE_INSTANCE", "Instance name already exists", nil)
		}
		return fail(c, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create instance", err.Error())
	}
	return ok(c, inst)
}

func updateInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	var payload instancePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse instance parameters", nil)
	}
	if err := instSvc.SetCustomName(c.Request().Context(), locationIDOf(c), id, payload.CustomName); err != nil {
		if domain.IsNotFound(err) {
			return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found", nil)
		}
		return fail(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to update instance", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id, "customName": payload.CustomName})
}

func deleteInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	if err := instSvc.Delete(c.Request().Context(), locationIDOf(c), id); err != nil {
		if domain.IsNotFound(err) {
			return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found", nil)
		}
		return fail(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete instance", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id})
}

func logoutInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	if err := instSvc.Logout(c.Request().Context(), locationIDOf(c), id); err != nil {
		if domain.IsNotFound(err) {
			return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found", nil)
		}
		return fail(c, http.StatusBadGateway, "LOGOUT_FAILED", "Gateway logout failed", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id, "state": domain.StateNotAuthorized})
}

func qrInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	result, err := instSvc.QR(c.Request().Context(), locationIDOf(c), id, c.QueryParam("number"))
	if err != nil {
		if domain.IsNotFound(err) {
			return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found", nil)
		}
		return fail(c, http.StatusBadGateway, "QR_FAILED", "Gateway connect failed", err.Error())
	}
	return ok(c, result)
}

func restartInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	if err := instSvc.Restart(c.Request().Context(), locationIDOf(c), id); err != nil {
		if domain.IsNotFound(err) {
			return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found", nil)
		}
		return fail(c, http.StatusBadGateway, "RESTART_FAILED", "Gateway restart failed", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id})
}

func setInstancePresence(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	var payload instancePayload
	if err := c.Bind(&payload); err != nil || payload.Presence == "" {
		return fail(c, http.StatusBadRequest, "MISSING_PRESENCE", "presence is required", nil)
	}
	if err := instSvc.SetPresence(c.Request().Context(), locationIDOf(c), id, payload.Presence); err != nil {
		if domain.IsNotFound(err) {
			return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found", nil)
		}
		return fail(c, http.StatusBadGateway, "PRESENCE_FAILED", "Gateway presence update failed", err.Error())
	}
	return ok(c, map[string]interface{}{"id": id, "presence": payload.Presence})
}

func statusInfo(c echo.Context) error {
	storage := "memory"
	if db := GetDB(c); db != nil {
		storage = "database"
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			return fail(c, http.StatusServiceUnavailable, "DATABASE_ERROR", "Database unreachable", nil)
		}
	}
	return ok(c, map[string]interface{}{
		"appid":   appConfig.System.Appid,
		"storage": storage,
	})
}
