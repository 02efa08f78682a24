package staticsite

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/savaki/static-site-cn/internal/errors"
)

const (
	// RedirectToIndexPage routes 403 and 404 responses to the index page with a 200,
	// which is what single page apps expect.
	RedirectToIndexPage = "redirect_to_index_page"

	DefaultIndexPage = "index.html"
)

// DomainProps describes the custom domain the distribution answers on.
type DomainProps struct {
	// DomainName is served by the distribution. Required in China regions, which
	// have no default *.cloudfront.cn certificate.
	DomainName string `json:"domainName" yaml:"domainName"`
	// IamCertificateID of the IAM server certificate (ACM is not available to
	// CloudFront in China regions).
	IamCertificateID string `json:"iamCertificateId" yaml:"iamCertificateId"`
	// IamCertificateName is resolved to an id when IamCertificateID is empty.
	IamCertificateName string `json:"iamCertificateName,omitempty" yaml:"iamCertificateName,omitempty"`
	// HostedZone is the Route 53 zone name the CNAME is created in.
	HostedZone string `json:"hostedZone,omitempty" yaml:"hostedZone,omitempty"`
	// HostedZoneID skips the zone lookup when set.
	HostedZoneID string `json:"hostedZoneId,omitempty" yaml:"hostedZoneId,omitempty"`
	// IsExternalDomain means DNS is managed elsewhere and no record is created.
	IsExternalDomain bool     `json:"isExternalDomain,omitempty" yaml:"isExternalDomain,omitempty"`
	AlternateNames   []string `json:"alternateNames,omitempty" yaml:"alternateNames,omitempty"`
}

// ManagesDNS reports whether a Route 53 record should be created.
func (d DomainProps) ManagesDNS() bool {
	return !d.IsExternalDomain
}

// Aliases returns the domain name followed by the alternate names, without duplicates.
func (d DomainProps) Aliases() []string {
	aliases := []string{d.DomainName}
	for _, name := range d.AlternateNames {
		if name == "" || slices.Contains(aliases, name) {
			continue
		}
		aliases = append(aliases, name)
	}
	return aliases
}

// Props configures a static site.
type Props struct {
	CustomDomain DomainProps `json:"customDomain" yaml:"customDomain"`
	// Path to the site sources, or to the built site when BuildCommand is empty.
	Path      string `json:"path" yaml:"path"`
	IndexPage string `json:"indexPage,omitempty" yaml:"indexPage,omitempty"`
	// ErrorPage is either RedirectToIndexPage or the key of an error document.
	ErrorPage    string            `json:"errorPage,omitempty" yaml:"errorPage,omitempty"`
	BuildCommand string            `json:"buildCommand,omitempty" yaml:"buildCommand,omitempty"`
	BuildOutput  string            `json:"buildOutput,omitempty" yaml:"buildOutput,omitempty"`
	Environment  map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	// PurgeFiles removes the build output before running BuildCommand.
	PurgeFiles bool `json:"purgeFiles,omitempty" yaml:"purgeFiles,omitempty"`

	// Parameters override the template parameter defaults.
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// Overrides are merged over the default properties of the named resources.
	Overrides map[string]map[string]any `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	Tags      map[string]string         `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// SourceDir is the directory whose contents are uploaded to the bucket.
func (p *Props) SourceDir() string {
	if p.BuildCommand != "" {
		return filepath.Join(p.Path, p.BuildOutput)
	}
	return p.Path
}

// Index returns the index page, defaulting to index.html.
func (p *Props) Index() string {
	if p.IndexPage == "" {
		return DefaultIndexPage
	}
	return p.IndexPage
}

// Validate checks the preconditions that must hold before anything is built or
// provisioned.
func (p *Props) Validate() error {
	if p.CustomDomain.DomainName == "" {
		return errors.ErrDomainNameRequired
	}

	if _, err := os.Stat(p.Path); err != nil {
		return fmt.Errorf("%w: no path found at %q", errors.ErrPathNotFound, p.Path)
	}

	if p.BuildCommand != "" && p.BuildOutput == "" {
		return errors.ErrBuildOutputRequired
	}

	if p.CustomDomain.ManagesDNS() && p.CustomDomain.HostedZone == "" && p.CustomDomain.HostedZoneID == "" {
		return errors.ErrHostedZoneRequired
	}

	for id := range p.Overrides {
		if !slices.Contains(LogicalIDs, id) {
			return fmt.Errorf("%w: %s (expected one of %s)", errors.ErrUnknownResource, id, strings.Join(LogicalIDs, ", "))
		}
	}

	return nil
}
