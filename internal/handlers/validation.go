package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/learnhub/pkg/errors"
	"github.com/charlesng35/learnhub/pkg/response"
	appValidator "github.com/charlesng35/learnhub/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and checks its rules. On
// failure the 400 response is already written.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, validationError(err))
		return false
	}
	return true
}

// validationError converts rule failures into a 400 and anything else into
// a 500.
func validationError(err error) *appErrors.AppError {
	var ve appValidator.ValidationErrors
	if errors.As(err, &ve) {
		return appErrors.NewBadRequest(ve.Error())
	}
	return appErrors.ErrInternalServer.WithInternal(err)
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBoolQuery(c *gin.Context, key string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && parsed
}
