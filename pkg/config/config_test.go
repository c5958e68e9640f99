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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
model:
  provider: "openai"
  name: "gpt-4o-mini"
worker:
  concurrency: 4
guardrail:
  confidence_floor: 0.8
log:
  level: "debug"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Model.Name != "gpt-4o-mini" {
		t.Errorf("Model.Name: got %q", cfg.Model.Name)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("Worker.Concurrency: got %d", cfg.Worker.Concurrency)
	}
	if cfg.Guardrail.ConfidenceFloor != 0.8 {
		t.Errorf("Guardrail.ConfidenceFloor: got %v", cfg.Guardrail.ConfidenceFloor)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_EnvAPIKey(t *testing.T) {
	dir := t.TempDir()
	yaml := `
model:
  provider: "openai"
  api_key: "${TEST_TRIAGE_API_KEY}"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	t.Setenv("TEST_TRIAGE_API_KEY", "sk-from-env")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Model.APIKey != "sk-from-env" {
		t.Errorf("Model.APIKey: got %q", cfg.Model.APIKey)
	}
}
