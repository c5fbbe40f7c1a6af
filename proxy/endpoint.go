package proxies

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// ErrFormat 输入行字段数量或端口不合法
var ErrFormat = errors.New("format error")

// Endpoint 单个 SOCKS5 代理地址，解析后不再修改
type Endpoint struct {
	Host     string
	Port     int
	Username string
	Password string
}

// HasAuth 用户名和密码都不为空时才进行认证
func (e Endpoint) HasAuth() bool {
	return e.Username != "" && e.Password != ""
}

// Addr 返回可直接拨号的 host:port
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint 解析一行代理配置
//
// 优先按 "|" 分隔，否则按 ":" 分隔，只接受 2 段(host, port)或 4 段(host, port, user, pass)。
// 冒号分隔时不处理 IPv6 字面量。
func ParseEndpoint(line string) (Endpoint, error) {
	line = strings.TrimSpace(line)

	var parts []string
	switch {
	case strings.Contains(line, "|"):
		parts = strings.Split(line, "|")
	case strings.Contains(line, ":"):
		parts = strings.Split(line, ":")
	}

	var ep Endpoint
	switch len(parts) {
	case 2:
		ep.Host = parts[0]
	case 4:
		ep.Host = parts[0]
		ep.Username = parts[2]
		ep.Password = parts[3]
	default:
		return Endpoint{}, ErrFormat
	}

	if ep.Host == "" {
		return Endpoint{}, ErrFormat
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, ErrFormat
	}
	ep.Port = port

	return ep, nil
}
