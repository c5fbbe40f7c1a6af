package proxies

import (
	"errors"
	"testing"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		line string
		want Endpoint
	}{
		{"1.2.3.4:1080", Endpoint{Host: "1.2.3.4", Port: 1080}},
		{"1.2.3.4|1080", Endpoint{Host: "1.2.3.4", Port: 1080}},
		{"  proxy.example.com:1080  ", Endpoint{Host: "proxy.example.com", Port: 1080}},
		{"1.2.3.4:1080:user:pass", Endpoint{Host: "1.2.3.4", Port: 1080, Username: "user", Password: "pass"}},
		{"1.2.3.4|1080|user|p:ss", Endpoint{Host: "1.2.3.4", Port: 1080, Username: "user", Password: "p:ss"}},
	}

	for _, c := range cases {
		got, err := ParseEndpoint(c.line)
		if err != nil {
			t.Errorf("%q 解析失败: %v", c.line, err)
			continue
		}
		if got != c.want {
			t.Errorf("%q 解析结果 %+v, 期望 %+v", c.line, got, c.want)
		}
	}
}

func TestParseEndpointFormatError(t *testing.T) {
	lines := []string{
		"",
		"1.2.3.4",
		"1.2.3.4:1080:user",
		"1.2.3.4|1080|user|pass|extra",
		"a:b:c:d:e",
		":1080",
		"1.2.3.4:port",
		"1.2.3.4:0",
		"1.2.3.4:65536",
		"2001:db8::1:1080",
	}

	for _, line := range lines {
		_, err := ParseEndpoint(line)
		if !errors.Is(err, ErrFormat) {
			t.Errorf("%q 应返回格式错误, 实际: %v", line, err)
		}
		if err != nil && err.Error() != "format error" {
			t.Errorf("%q 错误信息为 %q", line, err.Error())
		}
	}
}

func TestEndpointAddr(t *testing.T) {
	ep := Endpoint{Host: "1.2.3.4", Port: 1080}
	if ep.Addr() != "1.2.3.4:1080" {
		t.Errorf("Addr() = %s", ep.Addr())
	}
	if ep.HasAuth() {
		t.Error("无认证信息时 HasAuth 应为 false")
	}
	ep.Username = "u"
	if ep.HasAuth() {
		t.Error("只有用户名时 HasAuth 应为 false")
	}
	ep.Password = "p"
	if !ep.HasAuth() {
		t.Error("用户名和密码都有时 HasAuth 应为 true")
	}

	for _, line := range []string{"h:1080:user:", "h|1080||secret"} {
		ep, err := ParseEndpoint(line)
		if err != nil {
			t.Fatalf("%q 解析失败: %v", line, err)
		}
		if ep.HasAuth() {
			t.Errorf("%q 缺少用户名或密码时不应认证", line)
		}
	}
}
