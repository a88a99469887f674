package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// DespawnReasons 管理接口允许指定的回收原因
var DespawnReasons = []string{"admin", "claimed", "sweep"}

var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// CustomValidator wraps go-playground validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(400, TranslateValidationError(err))
	}
	return nil
}

// Struct 直接返回 validator 的原始错误，供 RPC 入口使用
func (cv *CustomValidator) Struct(i interface{}) error {
	return cv.validator.Struct(i)
}

// New creates a new custom validator instance
func New() *CustomValidator {
	v := validator.New()
	v.RegisterValidation("despawn_reason", validateDespawnReason)
	v.RegisterValidation("loot_code", validateLootCode)

	return &CustomValidator{
		validator: v,
	}
}

// validateDespawnReason 空值视为 admin
func validateDespawnReason(fl validator.FieldLevel) bool {
	reason := fl.Field().String()
	if reason == "" {
		return true
	}
	for _, r := range DespawnReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// validateLootCode 掉落表、原型、物品代码：小写字母开头，只含小写字母、数字和下划线，最长 64
func validateLootCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if len(code) == 0 || len(code) > 64 {
		return false
	}
	return codePattern.MatchString(code)
}
