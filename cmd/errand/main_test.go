package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/errand/internal/config"
	"github.com/nugget/errand/internal/gtd"
)

func TestRunVersion(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(context.Background(), &out, &out, []string{"version"}); err != nil {
			t.Fatalf("run: %v", err)
		}
		if !strings.HasPrefix(out.String(), "errand ") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(context.Background(), &out, &out, []string{"-o", "json", "version"}); err != nil {
			t.Fatalf("run: %v", err)
		}
		var info map[string]string
		if err := json.Unmarshal(out.Bytes(), &info); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if info["version"] == "" {
			t.Errorf("info = %v", info)
		}
	})
}

func TestRunArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"unknown flag", []string{"-x"}, "unknown flag"},
		{"bad output", []string{"-o", "yaml", "version"}, "unknown output format"},
		{"ask without message", []string{"ask"}, "usage: errand ask"},
		{"import without file", []string{"import-people"}, "usage: errand import-people"},
		{"missing config", []string{"-config", "/nonexistent/errand.yaml", "ask", "hi"}, "config file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), &out, &out, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run(%v) error = %v, want containing %q", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, cmd := range []string{"init", "serve", "ask", "import-people", "version"} {
		if !strings.Contains(out.String(), cmd) {
			t.Errorf("usage lacks %q", cmd)
		}
	}
}

func TestRouterConfig(t *testing.T) {
	cfg := config.Default()
	rc := routerConfig(cfg)
	if rc.DefaultModel != cfg.Models.Default || rc.ClassifierModel != cfg.Models.Classifier {
		t.Errorf("models = %q/%q", rc.DefaultModel, rc.ClassifierModel)
	}
	if len(rc.Models) != len(cfg.Models.Available) {
		t.Fatalf("models = %d, want %d", len(rc.Models), len(cfg.Models.Available))
	}
	if !rc.LocalFirst {
		t.Error("LocalFirst not carried over")
	}
}

const sampleVCards = `BEGIN:VCARD
VERSION:3.0
FN:Sam Lee
N:Lee;Sam;;;
NICKNAME:Sammy,Sam Lee
TEL;TYPE=CELL:+1 512 555 0100
EMAIL:sam@example.com
NOTE:Contractor
END:VCARD
BEGIN:VCARD
VERSION:3.0
N:Moreno;Dana;;;
END:VCARD
BEGIN:VCARD
VERSION:3.0
ORG:Nameless Corp
END:VCARD
`

func TestParseVCards(t *testing.T) {
	people, err := parseVCards(strings.NewReader(sampleVCards))
	if err != nil {
		t.Fatalf("parseVCards: %v", err)
	}
	if len(people) != 2 {
		t.Fatalf("people = %+v, want 2", people)
	}

	sam := people[0]
	if sam.Name != "Sam Lee" || sam.Phone != "+1 512 555 0100" || sam.Email != "sam@example.com" || sam.Notes != "Contractor" {
		t.Errorf("sam = %+v", sam)
	}
	if len(sam.Aliases) != 1 || sam.Aliases[0] != "Sammy" {
		t.Errorf("aliases = %v, want [Sammy]", sam.Aliases)
	}
	if people[1].Name != "Dana Moreno" {
		t.Errorf("name from N = %q", people[1].Name)
	}
}

func TestParseVCardsEmpty(t *testing.T) {
	_, err := parseVCards(strings.NewReader("BEGIN:VCARD\nVERSION:3.0\nORG:Acme\nEND:VCARD\n"))
	if !errors.Is(err, errNoPeople) {
		t.Errorf("err = %v, want errNoPeople", err)
	}
}

type fakePeople struct {
	people []gtd.Person
}

func (f *fakePeople) CreatePerson(_ context.Context, _ string, p gtd.Person) (*gtd.Person, error) {
	f.people = append(f.people, p)
	return &p, nil
}

func (f *fakePeople) FindPeople(_ context.Context, _ string, name string) ([]gtd.Person, error) {
	var out []gtd.Person
	for _, p := range f.people {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestImportPeopleSkipsKnown(t *testing.T) {
	store := &fakePeople{people: []gtd.Person{{Name: "sam lee"}}}
	added, skipped, err := importPeople(context.Background(), store, "u1", []gtd.Person{
		{Name: "Sam Lee"},
		{Name: "Dana Moreno"},
		{Name: "Sam"},
	})
	if err != nil {
		t.Fatalf("importPeople: %v", err)
	}
	if added != 2 || skipped != 1 {
		t.Errorf("added, skipped = %d, %d; want 2, 1", added, skipped)
	}
}

func TestRunImportPeople(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := "data_dir: " + filepath.Join(dir, "db") + "\nmodels:\n  default: test\n"
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	vcf := filepath.Join(dir, "people.vcf")
	if err := os.WriteFile(vcf, []byte(sampleVCards), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	args := []string{"-config", cfgPath, "-user", "u1", "import-people", vcf}
	if err := run(context.Background(), &out, &errOut, args); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Imported 2 people") {
		t.Errorf("first import output = %q", out.String())
	}

	out.Reset()
	if err := run(context.Background(), &out, &errOut, args); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(out.String(), "Imported 0 people") || !strings.Contains(out.String(), "2 already known") {
		t.Errorf("second import output = %q", out.String())
	}
}

func TestOpenAppProbes(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Anthropic.APIKey = "sk-test"

	a, err := openApp(cfg, newLogger(io.Discard, slog.LevelError, "text"))
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.closer()

	for _, name := range []string{"taskstore", "ollama", "anthropic"} {
		if a.probes[name] == nil {
			t.Errorf("no probe for %s", name)
		}
	}
	if _, ok := a.probes["openai"]; ok {
		t.Error("openai probed without configuration")
	}
	if err := a.probes["taskstore"](context.Background()); err != nil {
		t.Errorf("taskstore probe: %v", err)
	}
}
