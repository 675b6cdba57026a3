package hash

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultExcludeFields 计算内容 hash 时忽略的元数据字段，支持用 . 指定嵌套字段
var DefaultExcludeFields = []string{
	"metadata.resourceVersion",
	"metadata.uid",
}

// CalculateResourceHash 计算资源内容的 SHA256，排除 excludeFields 中的字段。
// encoding/json 对 map 按 key 排序输出，结果与字段顺序无关
func CalculateResourceHash(obj interface{}, excludeFields ...string) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}

	var objMap map[string]interface{}
	if err := json.Unmarshal(data, &objMap); err != nil {
		return "", fmt.Errorf("resource is not a JSON object: %w", err)
	}

	for _, field := range excludeFields {
		deleteField(objMap, strings.Split(field, "."))
	}

	cleanData, err := json.Marshal(objMap)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(cleanData)
	return hex.EncodeToString(sum[:]), nil
}

func deleteField(m map[string]interface{}, path []string) {
	if len(path) == 1 {
		delete(m, path[0])
		return
	}
	child, ok := m[path[0]].(map[string]interface{})
	if !ok {
		return
	}
	deleteField(child, path[1:])
}

// CalculateVersion 用列表内容的 MD5 作为版本号，内容不变版本不变
func CalculateVersion(items interface{}) (string, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return fmt.Sprintf("%x", sum), nil
}
