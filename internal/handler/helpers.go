package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"clinicpos/internal/apierror"
	"clinicpos/internal/apperrors"
	"clinicpos/internal/middleware"
	"clinicpos/internal/model"
	"clinicpos/internal/money"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(money.Money); ok {
			return v.Minor()
		}
		return nil
	}, money.Money(0))
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, money.ErrMalformed) {
			c.JSON(http.StatusUnprocessableEntity, apierror.WithCode(string(apperrors.KindInvalidAmount), err.Error()))
			return false
		}
		c.JSON(http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// statusOf maps an error kind onto the HTTP status returned to clients.
func statusOf(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindUnauthorized:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// respondError writes the taxonomy error as {detail, code}. Anything outside
// the taxonomy becomes a generic 500; the cause only reaches the logs.
func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	if kind == "" {
		log.Error().Err(err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, apierror.New("internal server error"))
		return
	}
	c.JSON(statusOf(kind), apierror.WithCode(string(kind), apperrors.MessageOf(err)))
}

// actorFrom builds the caller identity from the verified token claims.
func actorFrom(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.Actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return model.Actor{}, false
	}
	return actor, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(c *gin.Context, raw string, field string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid "+field))
		return nil, false
	}
	return &id, true
}

func queryDate(c *gin.Context, name string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", c.Query(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(name+" must be a YYYY-MM-DD date"))
		return time.Time{}, false
	}
	return t, true
}

func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
