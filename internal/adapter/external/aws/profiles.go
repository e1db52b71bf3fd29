// Package aws adapts the AWS SDK for the report collector: profile
// enumeration from the shared config file, EC2 instance discovery and
// CloudWatch metric statistics.
package aws

import (
	"strings"

	"gopkg.in/ini.v1"

	"reportd/internal/shared"
)

// Profile is a named AWS profile with its resolved region.
type Profile struct {
	Name   string
	Region string
}

// LoadProfiles reads profiles from an AWS shared config file
// (~/.aws/config). Profiles without their own region inherit the
// default profile's region; profiles with no resolvable region are
// skipped.
func LoadProfiles(path string) ([]Profile, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, shared.MarkKind(shared.Wrapf(err, "read aws config %s", path), shared.KindNotFound)
	}

	defaultRegion := ""
	if sec, err := cfg.GetSection("default"); err == nil {
		defaultRegion = sec.Key("region").String()
	}

	var profiles []Profile
	for _, sec := range cfg.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		// Named profiles appear as "profile <name>" in the shared
		// config file; "default" appears bare.
		name = strings.TrimPrefix(name, "profile ")

		region := sec.Key("region").String()
		if region == "" {
			region = defaultRegion
		}
		if region == "" {
			continue
		}
		profiles = append(profiles, Profile{Name: name, Region: region})
	}
	return profiles, nil
}
