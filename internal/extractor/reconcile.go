package extractor

import (
	"bytes"
	"encoding/json"

	"github.com/specbuilder/backend/internal/model"
)

// Reconcile 比较提取结果与当前仕様，只保留序列化形式不同的字段
// changed 为 false 时调用方不应写入状态或发布事件
func Reconcile(fragment Fragment, current model.ProjectSpec) (delta Fragment, changed bool) {
	for _, b := range bindings {
		v, ok := b.value(&fragment)
		if !ok {
			continue
		}
		if sameJSON(v, b.current(&current)) {
			continue
		}
		b.copy(&delta, &fragment)
		changed = true
	}
	return delta, changed
}

// Apply 把差分写入仕様
func Apply(spec *model.ProjectSpec, delta Fragment) {
	for _, b := range bindings {
		b.apply(spec, &delta)
	}
	spec.Normalize()
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
