// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package redaction

import (
	"strings"
	"testing"
)

// TestSanitize_Email 邮箱替换为占位符
func TestSanitize_Email(t *testing.T) {
	e := Default()
	out := e.Sanitize("notify oncall@example.com before restart")
	if strings.Contains(out, "oncall@example.com") {
		t.Errorf("email should be redacted: %q", out)
	}
	if !strings.Contains(out, "[EMAIL]") {
		t.Errorf("placeholder missing: %q", out)
	}
}

// TestSanitize_IPAndKey IPv4 与 API Key 同时命中
func TestSanitize_IPAndKey(t *testing.T) {
	e := Default()
	in := "drain node 10.0.3.17 using key sk-abcdefghijklmnopqrstuv1234"
	out := e.Sanitize(in)
	if strings.Contains(out, "10.0.3.17") || strings.Contains(out, "sk-abcdef") {
		t.Errorf("PII should be redacted: %q", out)
	}
	if !strings.Contains(out, "[IP_ADDR]") || !strings.Contains(out, "[API_KEY]") {
		t.Errorf("placeholders missing: %q", out)
	}
}

// TestSanitize_JWT 三段式 token 替换
func TestSanitize_JWT(t *testing.T) {
	e := Default()
	out := e.Sanitize("header eyJhbGciOiJI.eyJzdWIiOiIx.SflKxwRJSMeKKF2QT4")
	if strings.Contains(out, "eyJhbGciOiJI") {
		t.Errorf("jwt should be redacted: %q", out)
	}
}

// TestSanitize_Clean 无 PII 时原样返回
func TestSanitize_Clean(t *testing.T) {
	e := Default()
	in := "scale replicas from 3 to 5 for checkout"
	if out := e.Sanitize(in); out != in {
		t.Errorf("clean text should be unchanged: %q", out)
	}
}

func TestMatched(t *testing.T) {
	e := Default()
	names := e.Matched("ping 192.168.0.1 from admin@corp.io")
	if len(names) != 2 {
		t.Fatalf("expected 2 matched patterns, got %v", names)
	}
}
