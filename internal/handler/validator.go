package handler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/specbuilder/backend/internal/model"
)

var registerOnce sync.Once

// RegisterValidators 向 gin 的校验引擎注册自定义规则：notblank、phase
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		if err = v.RegisterValidation("notblank", notBlank); err != nil {
			return
		}
		err = v.RegisterValidation("phase", validPhase)
	})
	return err
}

// notBlank 字符串去除空白后非空
func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validPhase 阶段取值 1..5
func validPhase(fl validator.FieldLevel) bool {
	return model.Phase(fl.Field().Int()).Valid()
}
