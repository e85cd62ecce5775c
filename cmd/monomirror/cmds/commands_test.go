package cmds

import (
	"testing"

	"github.com/monomirror/monomirror/pkg/config"
	"github.com/monomirror/monomirror/pkg/proc"
)

func TestMirrorConfig(t *testing.T) {
	c := config.Default()
	c.ProcessName = "Game"
	c.ExportIndirect = false
	c.CachePages = 0
	c.Offsets.ClassFields = 0x70

	cfg := mirrorConfig(c)
	if cfg.ProcessName != "Game" || cfg.AssemblyName != c.AssemblyName || cfg.RootDomainExport != c.RootDomainExport {
		t.Errorf("names not carried over: %+v", cfg)
	}
	if cfg.ExportIndirect {
		t.Error("export-indirect not carried over")
	}
	if cfg.CachePages != proc.DefaultCachePages {
		t.Errorf("cache pages = %d, want the default", cfg.CachePages)
	}
	if cfg.Offsets.ClassFields != 0x70 {
		t.Errorf("offsets not carried over: %#x", cfg.Offsets.ClassFields)
	}
}

func TestCommandTree(t *testing.T) {
	root := New()
	for _, name := range []string{"status", "assemblies", "classes", "fields", "get", "collection", "decks", "arena", "draft", "match", "gametype", "exports", "repl", "script", "version", "log"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("subcommand %q not found", name)
		}
	}
	for _, flag := range []string{"config", "process", "assembly", "log", "log-output", "log-dest"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("flag --%s not defined", flag)
		}
	}
}

func TestSetupOverrides(t *testing.T) {
	configPath = t.TempDir() + "/missing.yml"
	processName = "Other"
	assemblyName = "Other-CSharp"
	defer func() {
		configPath, processName, assemblyName = "", "", ""
	}()
	if err := setup(); err != nil {
		t.Fatal(err)
	}
	if conf.ProcessName != "Other" || conf.AssemblyName != "Other-CSharp" {
		t.Errorf("flags did not override the configuration: %+v", conf)
	}
}

func TestNormalizeFlagName(t *testing.T) {
	root := New()
	if err := root.PersistentFlags().Parse([]string{"--log_output=mono", "--log-dest", "out.log"}); err != nil {
		t.Fatal(err)
	}
	defer func() { logOutput, logDest = "", "" }()
	if logOutput != "mono" || logDest != "out.log" {
		t.Errorf("log-output = %q, log-dest = %q", logOutput, logDest)
	}
}
