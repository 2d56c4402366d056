package config

import (
	"fmt"
	"os"
	"time"

	"github.com/editorialops/referee-monitor/internal/extraction"
	"github.com/editorialops/referee-monitor/internal/session"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LoginConfig holds the selectors of a platform's login form
type LoginConfig struct {
	URL                string        `yaml:"url" validate:"required,url"`
	Username           string        `yaml:"username" validate:"required"`
	Password           string        `yaml:"password" validate:"required"`
	Submit             string        `yaml:"submit" validate:"required"`
	SecondFactor       string        `yaml:"second_factor"`
	SecondFactorInput  string        `yaml:"second_factor_input"`
	SecondFactorSubmit string        `yaml:"second_factor_submit" validate:"required_with=SecondFactor"`
	LoggedIn           string        `yaml:"logged_in"`
	WaitTimeout        time.Duration `yaml:"wait_timeout"`
}

// PlatformConfig describes one monitored editorial platform
type PlatformConfig struct {
	Name string `yaml:"name" validate:"required,alphanum"`
	// CredentialService names the credential entry; defaults to Name.
	CredentialService string              `yaml:"credential_service"`
	Login             LoginConfig         `yaml:"login"`
	Extraction        extraction.Strategy `yaml:"extraction"`
}

// LoginFlow converts the login selectors for the session manager
func (p PlatformConfig) LoginFlow() session.LoginFlow {
	return session.LoginFlow{
		LoginURL:                   p.Login.URL,
		UsernameSelector:           p.Login.Username,
		PasswordSelector:           p.Login.Password,
		SubmitSelector:             p.Login.Submit,
		SecondFactorSelector:       p.Login.SecondFactor,
		SecondFactorInputSelector:  p.Login.SecondFactorInput,
		SecondFactorSubmitSelector: p.Login.SecondFactorSubmit,
		LoggedInSelector:           p.Login.LoggedIn,
		WaitTimeout:                p.Login.WaitTimeout,
	}
}

type platformsFile struct {
	Platforms []PlatformConfig `yaml:"platforms" validate:"required,min=1,dive"`
}

// LoadPlatforms reads and validates the platforms file
func LoadPlatforms(path string) ([]PlatformConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParsePlatforms(data)
}

// ParsePlatforms decodes a platforms document. Platform names must be unique.
func ParsePlatforms(data []byte) ([]PlatformConfig, error) {
	var file platformsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse platforms: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid platforms: %w", err)
	}

	seen := make(map[string]bool, len(file.Platforms))
	for i := range file.Platforms {
		p := &file.Platforms[i]
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate platform %q", p.Name)
		}
		seen[p.Name] = true
		if p.CredentialService == "" {
			p.CredentialService = p.Name
		}
		if p.Extraction.RowLinkSelector == "" && p.Extraction.DetailURLTemplate == "" {
			return nil, fmt.Errorf("platform %q needs row_link or detail_url", p.Name)
		}
	}
	return file.Platforms, nil
}

// Select keeps only the named platforms, in file order. An empty list keeps all.
func Select(platforms []PlatformConfig, names []string) ([]PlatformConfig, error) {
	if len(names) == 0 {
		return platforms, nil
	}
	byName := make(map[string]bool, len(names))
	for _, n := range names {
		byName[n] = true
	}
	var out []PlatformConfig
	for _, p := range platforms {
		if byName[p.Name] {
			out = append(out, p)
			delete(byName, p.Name)
		}
	}
	for n := range byName {
		return nil, fmt.Errorf("unknown platform %q", n)
	}
	return out, nil
}
