package errors

import "errors"

var (
	ErrDomainNameRequired  = errors.New("must set domainName in china region")
	ErrPathNotFound        = errors.New("no path found for static site")
	ErrBuildOutputRequired = errors.New("must set buildOutput if buildCommand exists")
	ErrHostedZoneRequired  = errors.New("must set hostedZone in china region if isExternalDomain is disabled")
	ErrUnknownResource     = errors.New("override names an unknown resource")
	ErrBuildFailed         = errors.New("there was a problem building the static site")
	ErrHostedZoneNotFound  = errors.New("hosted zone not found")
	ErrCertificateNotFound = errors.New("IAM server certificate not found")
	ErrCertificateRequired = errors.New("must set iamCertificateId or iamCertificateName")
	ErrRegionRequired      = errors.New("region is required")
	ErrStackNotFound       = errors.New("stack not found")
	ErrStackFailed         = errors.New("stack operation failed")
	ErrPolicyViolation     = errors.New("template violates site policy")
	ErrParameterNotFound   = errors.New("parameter not found")
	ErrInvalidParameter    = errors.New("invalid parameter, expected KEY=VALUE")
)
