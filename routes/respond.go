package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"felicity/logger"
	"felicity/middlewares"
	"felicity/services"
)

var statusByKind = map[services.Kind]int{
	services.KindValidation:      http.StatusBadRequest,
	services.KindNotFound:        http.StatusNotFound,
	services.KindForbidden:       http.StatusForbidden,
	services.KindConflict:        http.StatusConflict,
	services.KindUnauthenticated: http.StatusUnauthorized,
	services.KindInternal:        http.StatusInternalServerError,
}

// respondError renders err as {"error", "message", "issues"}. Internal
// causes are logged and never sent to the client.
func respondError(c *gin.Context, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		se = services.Internal("unexpected error", err)
	}
	status, ok := statusByKind[se.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := gin.H{"error": se.Kind, "message": se.Message}
	if se.Kind == services.KindInternal {
		logger.Error.Printf("[%s %s] %v", c.Request.Method, c.FullPath(), err)
		body["message"] = "Something went wrong. Try again later."
	}
	if len(se.Issues) > 0 {
		body["issues"] = se.Issues
	}
	if se.TicketID != "" {
		body["ticketid"] = se.TicketID
	}
	if se.CheckedInAt != "" {
		body["checkinat"] = se.CheckedInAt
	}
	c.AbortWithStatusJSON(status, body)
}

// useJSONFieldNames makes validator report json names instead of Go
// field names.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

func issueText(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// bindError turns a gin binding failure into a validation error.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		issues := make([]services.Issue, 0, len(ve))
		for _, fe := range ve {
			issues = append(issues, services.Issue{Field: fe.Field(), Message: issueText(fe)})
		}
		return services.Invalid("invalid request", issues...)
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return services.Invalid("invalid request", services.Issue{Field: te.Field, Message: "has the wrong type"})
	}
	return services.Invalid("Could not parse request data.")
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, bindError(err))
		return false
	}
	return true
}

// bindStrict rejects unknown keys, so a misspelt field in a patch is
// reported instead of silently ignored.
func bindStrict(c *gin.Context, v any) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			respondError(c, services.Invalid("request body is empty"))
			return false
		}
		if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			f := strings.Trim(name, `"`)
			respondError(c, services.Invalid("unknown field "+f, services.Issue{Field: f, Message: "is not an event field"}))
			return false
		}
		respondError(c, bindError(err))
		return false
	}
	return true
}

func principal(c *gin.Context) services.Principal { return middlewares.Principal(c) }

func sendCSV(c *gin.Context, e services.Export) {
	c.Header("Content-Disposition", `attachment; filename="`+e.Filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", e.Body)
}
