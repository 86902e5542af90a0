package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"bogus": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSetOutput_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "debug")
	t.Cleanup(func() { SetOutput(os.Stdout, "info") })

	ServiceNodes.Info().Int("count", 3).Msg("registry rebuilt")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["component"] != "service_nodes" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["count"] != float64(3) {
		t.Errorf("count = %v", entry["count"])
	}
}

func TestSetOutput_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn")
	t.Cleanup(func() { SetOutput(os.Stdout, "info") })

	Chain.Info().Msg("hidden")
	Chain.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message missing")
	}
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snoded.log")
	if err := Init("info", true, path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { SetOutput(os.Stdout, "info") })

	Node.Info().Msg("to file")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"component":"node"`) {
		t.Errorf("file log missing component: %s", data)
	}
}

func TestBenchmark(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, "debug")
	done := Benchmark(l, "rescan")
	done()
	if !strings.Contains(buf.String(), `"operation":"rescan"`) {
		t.Errorf("benchmark entry missing: %s", buf.String())
	}
}
