package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError 验证错误详情
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
}

// fieldNames 请求字段的中文名称
var fieldNames = map[string]string{
	"ContainerID": "掉落容器ID",
	"EntityID":    "实体ID",
	"ViewerID":    "观察者ID",
	"Reason":      "回收原因",
	"Radius":      "拾取半径",
	"Limit":       "条数",
	"OwnerID":     "拥有者ID",
	"Prototype":   "NPC原型",
	"ItemCode":    "物品代码",
	"X":           "X坐标",
	"Y":           "Y坐标",
	"Z":           "Z坐标",
	"Name":        "名称",
}

// TranslateValidationErrors 翻译所有验证错误
func TranslateValidationErrors(err error) []ValidationError {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []ValidationError{{Field: "request", Message: err.Error(), Tag: "unknown"}}
	}

	result := make([]ValidationError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		result = append(result, ValidationError{
			Field:   fe.Field(),
			Message: translateFieldError(fe),
			Tag:     fe.Tag(),
			Value:   truncateValue(fe.Value()),
		})
	}
	return result
}

// TranslateValidationError 只返回第一个错误的中文消息
func TranslateValidationError(err error) string {
	if errs := TranslateValidationErrors(err); len(errs) > 0 {
		return errs[0].Message
	}
	return ""
}

func truncateValue(value interface{}) string {
	if value == nil {
		return ""
	}
	s := fmt.Sprintf("%v", value)
	if len(s) > 50 {
		return s[:50] + "..."
	}
	return s
}

func translateFieldError(fe validator.FieldError) string {
	field := fe.Field()
	if name, ok := fieldNames[field]; ok {
		field = name
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s不能为空", field)
	case "gte":
		return fmt.Sprintf("%s必须大于或等于%s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s必须小于或等于%s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s必须大于%s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s长度不能超过%s个字符", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s只能包含数字", field)
	case "oneof":
		return fmt.Sprintf("%s的值必须是以下之一: %s", field, fe.Param())
	case "contains":
		return fmt.Sprintf("%s必须包含%s", field, fe.Param())
	case "despawn_reason":
		return fmt.Sprintf("%s必须是以下之一: %s", field, strings.Join(DespawnReasons, " "))
	case "loot_code":
		return fmt.Sprintf("%s只能包含小写字母、数字和下划线,且以字母开头", field)
	default:
		return fmt.Sprintf("%s验证失败: %s", field, fe.Tag())
	}
}
