package staticsite

import (
	"fmt"
	"maps"
	"strings"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/cloudfront"
	"github.com/awslabs/goformation/v7/cloudformation/policies"
	"github.com/awslabs/goformation/v7/cloudformation/route53"
	"github.com/awslabs/goformation/v7/cloudformation/s3"
	"github.com/savaki/static-site-cn/internal/errors"
)

// Logical ids of the resources in the rendered template. Overrides are keyed by these.
const (
	BucketID               = "Bucket"
	BucketPolicyID         = "BucketPolicy"
	OriginAccessIdentityID = "OriginAccessIdentity"
	DistributionID         = "Distribution"
	RecordID               = "Cname"
)

var LogicalIDs = []string{BucketID, BucketPolicyID, OriginAccessIdentityID, DistributionID, RecordID}

// Template parameters. Both default to the configured values and can be
// overridden per deploy, e.g. to rotate the IAM certificate.
const (
	ParamDomainName       = "DomainName"
	ParamIamCertificateID = "IamCertificateId"
)

// Stack output keys.
const (
	OutputBucketName             = "BucketName"
	OutputDistributionID         = "DistributionId"
	OutputDistributionDomainName = "DistributionDomainName"
	OutputDomainName             = "DomainName"
	OutputIamCertificateID       = "IamCertificateId"
	// OutputAccount is only present when the account is known at synth time.
	OutputAccount = "Account"
)

const (
	recordTTL = "1800"

	connectionAttempts = 3
	connectionTimeout  = 10
	minTTL             = 0
	defaultTTL         = 360
	maxTTL             = 3600
)

// Env is the account and region the site is deployed to.
type Env struct {
	Account string
	Region  string
}

// IsChinaRegion reports whether region is one of the aws-cn partition regions.
func IsChinaRegion(region string) bool {
	return strings.HasPrefix(region, "cn")
}

// Site is a static site wired into a CloudFormation template.
type Site struct {
	DomainName       string
	IamCertificateID string
	IndexPage        string
	SourceDir        string
	Env              Env
	Template         *cloudformation.Template
	// Parameters holds the template parameter values, caller overrides applied.
	Parameters map[string]string
}

// New validates props and renders the resources of the site. The IAM
// certificate id must already be resolved.
func New(env Env, props Props) (*Site, error) {
	if err := props.Validate(); err != nil {
		return nil, err
	}
	if env.Region == "" {
		return nil, errors.ErrRegionRequired
	}
	if props.CustomDomain.IamCertificateID == "" {
		return nil, errors.ErrCertificateRequired
	}

	site := &Site{
		DomainName:       props.CustomDomain.DomainName,
		IamCertificateID: props.CustomDomain.IamCertificateID,
		IndexPage:        props.Index(),
		SourceDir:        props.SourceDir(),
		Env:              env,
	}

	site.Parameters = map[string]string{
		ParamDomainName:       site.DomainName,
		ParamIamCertificateID: site.IamCertificateID,
	}
	maps.Copy(site.Parameters, props.Parameters)

	resources := cloudformation.Resources{
		BucketID:               bucket(site),
		BucketPolicyID:         bucketPolicy(),
		OriginAccessIdentityID: originAccessIdentity(site),
		DistributionID:         distribution(site, props),
	}
	if props.CustomDomain.ManagesDNS() {
		resources[RecordID] = cname(props.CustomDomain)
	}

	for id, overrides := range props.Overrides {
		resource, ok := resources[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not part of this site", errors.ErrUnknownResource, id)
		}
		if err := applyOverrides(resource, overrides); err != nil {
			return nil, fmt.Errorf("resource %s: %w", id, err)
		}
	}

	template := cloudformation.NewTemplate()
	template.Description = fmt.Sprintf("Static site %s", site.DomainName)
	template.Parameters = cloudformation.Parameters{
		ParamDomainName: {
			Type:        "String",
			Default:     site.DomainName,
			Description: cloudformation.String("Domain name served by the distribution"),
		},
		ParamIamCertificateID: {
			Type:        "String",
			Default:     site.IamCertificateID,
			Description: cloudformation.String("IAM server certificate id used by the distribution"),
		},
	}
	template.Resources = resources
	template.Outputs = cloudformation.Outputs{
		OutputBucketName: {
			Value:       cloudformation.Ref(BucketID),
			Description: cloudformation.String("Bucket holding the site assets"),
		},
		OutputDistributionID:         {Value: cloudformation.Ref(DistributionID)},
		OutputDistributionDomainName: {Value: cloudformation.GetAtt(DistributionID, "DomainName")},
		OutputDomainName:             {Value: cloudformation.Ref(ParamDomainName)},
		OutputIamCertificateID:       {Value: cloudformation.Ref(ParamIamCertificateID)},
	}
	if env.Account != "" {
		template.Outputs[OutputAccount] = cloudformation.Output{
			Value:       env.Account,
			Description: cloudformation.String("Account the site was deployed to"),
		}
	}
	site.Template = template

	return site, nil
}

func bucket(site *Site) *s3.Bucket {
	return &s3.Bucket{
		WebsiteConfiguration: &s3.Bucket_WebsiteConfiguration{
			IndexDocument: cloudformation.String(site.IndexPage),
		},
		PublicAccessBlockConfiguration: &s3.Bucket_PublicAccessBlockConfiguration{
			BlockPublicAcls:       cloudformation.Bool(true),
			BlockPublicPolicy:     cloudformation.Bool(true),
			IgnorePublicAcls:      cloudformation.Bool(true),
			RestrictPublicBuckets: cloudformation.Bool(true),
		},
		AWSCloudFormationDeletionPolicy:      policies.DeletionPolicy("Delete"),
		AWSCloudFormationUpdateReplacePolicy: policies.UpdateReplacePolicy("Delete"),
	}
}

// bucketPolicy grants the origin access identity read on the bucket and its objects.
func bucketPolicy() *s3.BucketPolicy {
	bucketArn := cloudformation.GetAtt(BucketID, "Arn")
	return &s3.BucketPolicy{
		Bucket: cloudformation.Ref(BucketID),
		PolicyDocument: map[string]any{
			"Version": "2012-10-17",
			"Statement": []any{
				map[string]any{
					"Effect": "Allow",
					"Action": []string{"s3:GetObject*", "s3:GetBucket*", "s3:List*"},
					"Principal": map[string]any{
						"CanonicalUser": cloudformation.GetAtt(OriginAccessIdentityID, "S3CanonicalUserId"),
					},
					"Resource": []string{bucketArn, cloudformation.Join("", []string{bucketArn, "/*"})},
				},
			},
		},
	}
}

func originAccessIdentity(site *Site) *cloudfront.CloudFrontOriginAccessIdentity {
	return &cloudfront.CloudFrontOriginAccessIdentity{
		CloudFrontOriginAccessIdentityConfig: &cloudfront.CloudFrontOriginAccessIdentity_CloudFrontOriginAccessIdentityConfig{
			Comment: fmt.Sprintf("Identity for %s", site.DomainName),
		},
	}
}

// BucketDomainName is the origin host. China regions serve S3 from
// amazonaws.com.cn, which the DomainName attribute does not reflect.
func BucketDomainName(region string) string {
	if IsChinaRegion(region) {
		return cloudformation.Join("", []string{cloudformation.Ref(BucketID), ".s3.", region, ".amazonaws.com.cn"})
	}
	return cloudformation.GetAtt(BucketID, "DomainName")
}

func distribution(site *Site, props Props) *cloudfront.Distribution {
	aliases := []string{cloudformation.Ref(ParamDomainName)}
	aliases = append(aliases, props.CustomDomain.Aliases()[1:]...)

	return &cloudfront.Distribution{
		DistributionConfig: &cloudfront.Distribution_DistributionConfig{
			Aliases: aliases,
			Origins: []cloudfront.Distribution_Origin{
				{
					Id:                 cloudformation.Ref(BucketID),
					DomainName:         BucketDomainName(site.Env.Region),
					ConnectionAttempts: cloudformation.Int(connectionAttempts),
					ConnectionTimeout:  cloudformation.Int(connectionTimeout),
					S3OriginConfig: &cloudfront.Distribution_S3OriginConfig{
						OriginAccessIdentity: cloudformation.JoinPtr("", []string{
							"origin-access-identity/cloudfront/",
							cloudformation.Ref(OriginAccessIdentityID),
						}),
					},
				},
			},
			OriginGroups: &cloudfront.Distribution_OriginGroups{Quantity: 0},
			DefaultCacheBehavior: &cloudfront.Distribution_DefaultCacheBehavior{
				TargetOriginId:       cloudformation.Ref(BucketID),
				ViewerProtocolPolicy: "redirect-to-https",
				AllowedMethods:       []string{"HEAD", "GET"},
				CachedMethods:        []string{"HEAD", "GET"},
				Compress:             cloudformation.Bool(true),
				MinTTL:               cloudformation.Float64(minTTL),
				DefaultTTL:           cloudformation.Float64(defaultTTL),
				MaxTTL:               cloudformation.Float64(maxTTL),
				ForwardedValues:      &cloudfront.Distribution_ForwardedValues{QueryString: true},
				SmoothStreaming:      cloudformation.Bool(false),
			},
			Comment: cloudformation.String(fmt.Sprintf("Static site %s", site.DomainName)),
			Enabled: true,
			Restrictions: &cloudfront.Distribution_Restrictions{
				GeoRestriction: &cloudfront.Distribution_GeoRestriction{RestrictionType: "none"},
			},
			HttpVersion:       cloudformation.String("http1.1"),
			DefaultRootObject: cloudformation.String(site.IndexPage),
			IPV6Enabled:       cloudformation.Bool(!IsChinaRegion(site.Env.Region)),
			ViewerCertificate: &cloudfront.Distribution_ViewerCertificate{
				IamCertificateId:       cloudformation.RefPtr(ParamIamCertificateID),
				MinimumProtocolVersion: cloudformation.String("TLSv1"),
				SslSupportMethod:       cloudformation.String("sni-only"),
			},
			CustomErrorResponses: errorResponses(props.ErrorPage, site.IndexPage),
		},
	}
}

func errorResponses(errorPage, indexPage string) []cloudfront.Distribution_CustomErrorResponse {
	switch errorPage {
	case "":
		return nil
	case RedirectToIndexPage:
		var responses []cloudfront.Distribution_CustomErrorResponse
		for _, code := range []int{403, 404} {
			responses = append(responses, cloudfront.Distribution_CustomErrorResponse{
				ErrorCode:        code,
				ResponseCode:     cloudformation.Int(200),
				ResponsePagePath: cloudformation.String("/" + indexPage),
			})
		}
		return responses
	default:
		return []cloudfront.Distribution_CustomErrorResponse{
			{
				ErrorCode:        404,
				ResponseCode:     cloudformation.Int(404),
				ResponsePagePath: cloudformation.String("/" + strings.TrimPrefix(errorPage, "/")),
			},
		}
	}
}

func cname(domain DomainProps) *route53.RecordSet {
	record := &route53.RecordSet{
		Name:            cloudformation.Ref(ParamDomainName),
		Type:            "CNAME",
		TTL:             cloudformation.String(recordTTL),
		ResourceRecords: []string{cloudformation.GetAtt(DistributionID, "DomainName")},
	}
	if domain.HostedZoneID != "" {
		record.HostedZoneId = cloudformation.String(domain.HostedZoneID)
	} else {
		record.HostedZoneName = cloudformation.String(strings.TrimSuffix(domain.HostedZone, ".") + ".")
	}
	return record
}
