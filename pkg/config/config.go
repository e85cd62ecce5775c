package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"

	"github.com/monomirror/monomirror/pkg/mono"
)

const (
	configDir  string = ".monomirror"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// ProcessName is the image name of the target process.
	ProcessName string `yaml:"process-name"`
	// AssemblyName is the assembly whose classes are browsed.
	AssemblyName string `yaml:"assembly-name"`
	// RootDomainExport is the module export leading to the root domain.
	RootDomainExport string `yaml:"root-domain-export"`
	// ExportIndirect is true when the export is a pointer to the accessor
	// function rather than the function itself.
	ExportIndirect bool `yaml:"export-indirect"`
	// CachePages is the number of 4KiB pages kept by the page cache.
	CachePages int `yaml:"cache-pages"`

	// Offsets is the structure layout of the runtime in the target. Keys
	// left out keep their default value.
	Offsets mono.Offsets `yaml:"offsets"`

	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// MaxArrayValues is the maximum number of array elements the
	// interactive commands print.
	MaxArrayValues int `yaml:"max-array-values"`
	// DisassembleFlavor is the syntax of disassembled code: intel, gnu or go.
	DisassembleFlavor string `yaml:"disassemble-flavor"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		ProcessName:       "Hearthstone",
		AssemblyName:      "Assembly-CSharp",
		RootDomainExport:  "mono_get_root_domain",
		ExportIndirect:    true,
		CachePages:        1024,
		Offsets:           mono.DefaultOffsets(),
		MaxArrayValues:    64,
		DisassembleFlavor: "intel",
	}
}

// LoadConfig attempts to populate a Config object from the config.yml file
// in the configuration directory, creating a default one when missing.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return Default(), fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return Default(), fmt.Errorf("unable to get config file path: %v", err)
	}

	if _, err := os.Stat(fullConfigFile); os.IsNotExist(err) {
		f, err := createDefaultConfig(fullConfigFile)
		if err != nil {
			return Default(), fmt.Errorf("error creating default config file: %v", err)
		}
		f.Close()
	}
	return LoadFile(fullConfigFile)
}

// LoadFile reads the configuration at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Default(), err
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a configuration file from r on top of the defaults.
func Read(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Default(), fmt.Errorf("unable to read config data: %v", err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return Default(), fmt.Errorf("unable to decode config file: %v", err)
	}
	return c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	return f, nil
}

func writeDefaultConfig(w io.Writer) error {
	_, err := io.WriteString(w,
		`# Configuration file for monomirror.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Name of the process to read, without the .exe suffix.
# process-name: Hearthstone

# Assembly whose classes are browsed.
# assembly-name: Assembly-CSharp

# Export of the runtime module used to find the root domain, and whether the
# export holds a pointer to the function instead of the function itself.
# root-domain-export: mono_get_root_domain
# export-indirect: true

# Number of 4KiB pages of target memory kept in the cache during a read.
# cache-pages: 1024

# Structure layout of the runtime. Only the keys that differ from the
# built in layout need to be listed.
# offsets:
#   domain-assemblies: 0x6c
#   image-class-cache: 0x2a0
#   class-fields: 0x74

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Maximum number of array elements printed by the interactive commands.
# max-array-values: 64

# Syntax of disassembled code (intel, gnu or go).
# disassemble-flavor: intel
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
