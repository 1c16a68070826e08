// Package validate 提供 gin 绑定和实时网关共用的参数校验器
// 校验错误会被翻译成 {字段: 提示} 的结构，字段名取 json tag
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

var (
	once  sync.Once
	v     *validator.Validate
	uni   *ut.UniversalTranslator
	mu    sync.RWMutex
	trans ut.Translator
	// 每种语言的默认翻译只能注册一次，重复注册会报冲突
	registered = map[string]bool{}
)

func setup() {
	v = validator.New()
	// 与 gin 保持同一个 tag，DTO 只需要写一份 binding 规则
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	enT := en.New()
	uni = ut.New(enT, enT, zh.New())
	t, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, t)
	registerUsernameTranslation(t, "{0} must be 3-32 letters, digits or underscores")
	registered["en"] = true
	trans = t
}

// Engine 返回共享的 validator 实例
func Engine() *validator.Validate {
	once.Do(setup)
	return v
}

// InitTrans 切换翻译语言并把共享校验器挂到 gin 上
// locale 取 "zh" 或 "en"，其他值按英文处理
func InitTrans(locale string) error {
	engine := Engine()
	binding.Validator = &ginValidator{validate: engine}

	if locale != "zh" {
		locale = "en"
	}
	t, ok := uni.GetTranslator(locale)
	if !ok {
		return fmt.Errorf("uni.GetTranslator(%s) failed", locale)
	}
	mu.Lock()
	defer mu.Unlock()
	if registered[locale] {
		trans = t
		return nil
	}
	var err error
	switch locale {
	case "zh":
		err = zh_translations.RegisterDefaultTranslations(engine, t)
		registerUsernameTranslation(t, "{0}只能包含3-32位字母、数字或下划线")
	default:
		err = en_translations.RegisterDefaultTranslations(engine, t)
		registerUsernameTranslation(t, "{0} must be 3-32 letters, digits or underscores")
	}
	if err != nil {
		return err
	}
	registered[locale] = true
	trans = t
	return nil
}

func registerUsernameTranslation(t ut.Translator, text string) {
	_ = v.RegisterTranslation("username", t, func(ut ut.Translator) error {
		return ut.Add("username", text, true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		msg, _ := ut.T("username", fe.Field())
		return msg
	})
}

// Struct 校验结构体，失败时返回翻译后的字段错误
func Struct(obj any) map[string]string {
	if err := Engine().Struct(obj); err != nil {
		return Translate(err)
	}
	return nil
}

// Translate 把校验错误翻译成 {字段: 提示}
// 非 validator 错误（如 JSON 解析失败）统一放在 "payload" 字段下
func Translate(err error) map[string]string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		mu.RLock()
		t := trans
		mu.RUnlock()
		return RemoveTopStruct(validationErrs.Translate(t))
	}
	return map[string]string{"payload": err.Error()}
}

// RemoveTopStruct 去除提示信息中的结构体名称
func RemoveTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string, len(fields))
	for field, msg := range fields {
		res[field[strings.Index(field, ".")+1:]] = msg
	}
	return res
}

// ginValidator 让 gin 的 ShouldBind 使用同一个校验器
type ginValidator struct {
	validate *validator.Validate
}

// ValidateStruct 只校验结构体（或指向结构体的指针），其余类型放行
func (g *ginValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	val := reflect.ValueOf(obj)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}
	return g.validate.Struct(obj)
}

// Engine 实现 binding.StructValidator
func (g *ginValidator) Engine() any {
	return g.validate
}
