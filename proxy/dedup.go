package proxies

import "strings"

// endpointKey 分隔符不同但地址、端口、凭据相同的视为同一代理
func endpointKey(line string) (string, bool) {
	ep, err := ParseEndpoint(line)
	if err != nil {
		return "", false
	}
	return strings.ToLower(ep.Addr()) + "\x00" + ep.Username + "\x00" + ep.Password, true
}

// DeduplicateLines 去除重复代理，保留首次出现的位置，无法解析的行原样保留
// 返回去重后的列表和被移除的数量
func DeduplicateLines(lines []string) ([]string, int) {
	seenKeys := make(map[string]struct{}, len(lines))
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		key, ok := endpointKey(line)
		if !ok {
			result = append(result, line)
			continue
		}
		if _, dup := seenKeys[key]; dup {
			continue
		}
		seenKeys[key] = struct{}{}
		result = append(result, line)
	}
	return result, len(lines) - len(result)
}
