package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Feature int

const (
	FeatFold Feature = iota
	FeatImplicitReturn
	FeatIRComments
	FeatCount
)

type Warning int

const (
	WarnArrayCopy Warning = iota
	WarnLargeCopy
	WarnImplicitReturn
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features         map[Feature]Info
	Warnings         map[Warning]Info
	FeatureMap       map[string]Feature
	WarningMap       map[string]Warning
	EntryFunc        string
	Prompt           string
	WordSize         int
	MaxUnrolledWords int
}

func NewConfig() *Config {
	cfg := &Config{
		Features:         make(map[Feature]Info),
		Warnings:         make(map[Warning]Info),
		FeatureMap:       make(map[string]Feature),
		WarningMap:       make(map[string]Warning),
		EntryFunc:        "main",
		Prompt:           "Enter an integer:",
		WordSize:         4,
		MaxUnrolledWords: 64,
	}

	features := map[Feature]Info{
		FeatFold:           {"fold", true, "Fold ADD/SUB/MUL of two constants at translation time."},
		FeatImplicitReturn: {"implicit-return", true, "Append `RETURN #0` to functions that can fall off their end."},
		FeatIRComments:     {"ir-comments", false, "Annotate the assembly with the IR instruction each block came from."},
	}

	warnings := map[Warning]Info{
		WarnArrayCopy:      {"array-copy", true, "Warn when an array assignment copies fewer words than the destination holds."},
		WarnLargeCopy:      {"large-copy", true, "Warn when an unrolled array copy is longer than the configured limit."},
		WarnImplicitReturn: {"implicit-return", false, "Warn when a function needs an implicit return."},
		WarnExtra:          {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// Validate checks the scalar settings the code generator depends on.
func (c *Config) Validate() error {
	if c.WordSize != 4 {
		return fmt.Errorf("word size %d is not supported, the target word is 4 bytes", c.WordSize)
	}
	if c.EntryFunc == "" {
		return fmt.Errorf("entry function name is empty")
	}
	if c.MaxUnrolledWords < 0 {
		return fmt.Errorf("max-unrolled-words must not be negative")
	}
	return nil
}

type fileConfig struct {
	Entry            *string         `yaml:"entry"`
	Prompt           *string         `yaml:"prompt"`
	WordSize         *int            `yaml:"word-size"`
	MaxUnrolledWords *int            `yaml:"max-unrolled-words"`
	Features         map[string]bool `yaml:"features"`
	Warnings         map[string]bool `yaml:"warnings"`
}

// Apply overlays a YAML document onto c.
func (c *Config) Apply(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}
	if fc.Entry != nil {
		c.EntryFunc = *fc.Entry
	}
	if fc.Prompt != nil {
		c.Prompt = *fc.Prompt
	}
	if fc.WordSize != nil {
		c.WordSize = *fc.WordSize
	}
	if fc.MaxUnrolledWords != nil {
		c.MaxUnrolledWords = *fc.MaxUnrolledWords
	}
	for name, on := range fc.Features {
		ft, ok := c.FeatureMap[name]
		if !ok {
			return fmt.Errorf("unknown feature '%s'", name)
		}
		c.SetFeature(ft, on)
	}
	for name, on := range fc.Warnings {
		wt, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(wt, on)
	}
	return c.Validate()
}

// LoadFile overlays the YAML config file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := c.Apply(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

// ProcessFlags applies -W/-F style flags in order, with -Wall and -Wno-all first
// so that specific flags can override them.
func (c *Config) ProcessFlags(flags []string) {
	for _, f := range flags {
		if f == "-Wall" || f == "-Wno-all" {
			c.applyFlag(f)
		}
	}
	for _, f := range flags {
		if f != "-Wall" && f != "-Wno-all" {
			c.applyFlag(f)
		}
	}
}

// PrintOptions lists every feature and warning with its current state.
func (c *Config) PrintOptions(w io.Writer) {
	fmt.Fprintln(w, "Features (-F<name>, -Fno-<name>):")
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		fmt.Fprintf(w, "  - %-16s: %v (%s)\n", info.Name, info.Enabled, info.Description)
	}
	fmt.Fprintln(w, "Warnings (-W<name>, -Wno-<name>, -Wall):")
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		fmt.Fprintf(w, "  - %-16s: %v (%s)\n", info.Name, info.Enabled, info.Description)
	}
}
